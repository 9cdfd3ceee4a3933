package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Sequela02/ehrlich-sub001/internal/budget"
	"github.com/Sequela02/ehrlich-sub001/internal/domain"
	"github.com/Sequela02/ehrlich-sub001/internal/events"
	"github.com/Sequela02/ehrlich-sub001/internal/investigation"
	"github.com/Sequela02/ehrlich-sub001/internal/runner"
	"github.com/Sequela02/ehrlich-sub001/internal/scheduler"
)

type stubPlanner struct {
	proposed     []ProposedHypothesis
	formulateErr error
	designErr    map[string]error
	evalErr      map[string]error
	evals        map[string]scheduler.Evaluation
	evaluated    []string
}

func (p *stubPlanner) Formulate(context.Context, *investigation.Investigation, domain.Config) ([]ProposedHypothesis, error) {
	return p.proposed, p.formulateErr
}

func (p *stubPlanner) DesignExperiment(_ context.Context, _ *investigation.Investigation, h *investigation.Hypothesis) (investigation.ExperimentDesign, error) {
	if err := p.designErr[h.Statement]; err != nil {
		return investigation.ExperimentDesign{}, err
	}
	return investigation.ExperimentDesign{Description: "test " + h.Statement, ToolPlan: []string{"search_literature"}}, nil
}

func (p *stubPlanner) Evaluate(_ context.Context, _ *investigation.Investigation, h *investigation.Hypothesis, _ *investigation.Experiment) (scheduler.Evaluation, error) {
	p.evaluated = append(p.evaluated, h.Statement)
	if err := p.evalErr[h.Statement]; err != nil {
		return scheduler.Evaluation{}, err
	}
	if eval, ok := p.evals[h.Statement]; ok {
		return eval, nil
	}
	return scheduler.Evaluation{Action: scheduler.ActionPrune, Status: investigation.HypothesisSupported}, nil
}

func (p *stubPlanner) Synthesize(context.Context, *investigation.Investigation) (string, error) {
	return "MurA is tractable", nil
}

type stubResearchers struct {
	acct     *budget.Accountant
	domain   domain.Config
	controls bool
}

func (s *stubResearchers) For(dom domain.Config, acct *budget.Accountant) runner.Session {
	s.acct, s.domain = acct, dom
	return runner.SessionFunc(func(_ context.Context, shared *investigation.Shared, task runner.Task, emit events.Emit) error {
		acct.AddUsage(100, 10, "claude-haiku-4-5")
		shared.AddFinding(investigation.Finding{HypothesisID: task.Hypothesis.ID, Title: "evidence for " + task.Hypothesis.Statement})
		if s.controls {
			for i := 0; i < 3; i++ {
				shared.AddControl(investigation.Control{Identifier: fmt.Sprintf("p%d", i), Kind: investigation.ControlPositive, Score: 0.9 + float64(i)/100})
				shared.AddControl(investigation.Control{Identifier: fmt.Sprintf("n%d", i), Kind: investigation.ControlNegative, Score: 0.1 + float64(i)/100})
			}
		}
		supports := true
		shared.ConcludeExperiment(task.Experiment, &supports, "ok")
		return nil
	})
}

type stubRepo struct {
	saves  int
	status investigation.Status
}

func (r *stubRepo) UpdateInvestigation(_ context.Context, inv *investigation.Investigation) error {
	r.saves++
	r.status = inv.Status
	return nil
}

func registry(t *testing.T) *domain.Registry {
	t.Helper()
	reg := domain.NewRegistry()
	for _, cfg := range []domain.Config{
		{Name: "molecular_science", Categories: []string{"chemistry"}},
		{Name: "sports_science", Categories: []string{"training"}},
	} {
		if err := reg.Register(cfg); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return reg
}

type recorder struct{ events []events.Event }

func (r *recorder) emit(ev events.Event) { r.events = append(r.events, ev) }

func (r *recorder) count(kind string) int {
	n := 0
	for _, ev := range r.events {
		if ev.Kind() == kind {
			n++
		}
	}
	return n
}

func byStatement(inv *investigation.Investigation, s string) *investigation.Hypothesis {
	for _, h := range inv.Hypotheses {
		if h.Statement == s {
			return h
		}
	}
	return nil
}

func TestRunGrowsTreeAndCompletes(t *testing.T) {
	planner := &stubPlanner{
		proposed: []ProposedHypothesis{
			{Statement: "covalent inhibition", PriorConfidence: 0.8},
			{Statement: "allosteric inhibition", PriorConfidence: 0.6},
		},
		evals: map[string]scheduler.Evaluation{
			"covalent inhibition":   {Action: scheduler.ActionDeepen, Revision: "Cys115 adduct is required", Certainty: investigation.CertaintyHigh},
			"allosteric inhibition": {Action: scheduler.ActionPrune, Status: investigation.HypothesisRefuted},
		},
	}
	repo := &stubRepo{}
	researchers := &stubResearchers{}
	o := New(planner, researchers, registry(t), Config{}, WithRepository(repo))

	inv := investigation.New("find MurA inhibitors")
	inv.Domain = "training"
	var rec recorder
	if err := o.Run(context.Background(), inv, rec.emit); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if inv.Domain != "sports_science" || researchers.domain.Name != "sports_science" {
		t.Fatalf("expected category resolved to sports_science, got %q", inv.Domain)
	}
	if inv.Status != investigation.StatusCompleted || inv.Summary != "MurA is tractable" {
		t.Fatalf("unexpected final state %s %q", inv.Status, inv.Summary)
	}
	if len(inv.Experiments) != 3 || len(inv.Findings) != 3 {
		t.Fatalf("expected 3 experiments and findings, got %d/%d", len(inv.Experiments), len(inv.Findings))
	}
	child := byStatement(inv, "Cys115 adduct is required")
	if child == nil || child.Depth != 1 || child.Status != investigation.HypothesisSupported {
		t.Fatalf("expected deepened child tested and supported, got %+v", child)
	}
	if h := byStatement(inv, "allosteric inhibition"); h.Status != investigation.HypothesisRefuted {
		t.Fatalf("expected refuted, got %s", h.Status)
	}
	if h := byStatement(inv, "covalent inhibition"); h.Status != investigation.HypothesisRevised {
		t.Fatalf("expected revised parent, got %s", h.Status)
	}
	if rec.count("hypothesis_proposed") != 3 || rec.count("hypothesis_evaluated") != 3 {
		t.Fatalf("unexpected proposal/evaluation events: %d/%d", rec.count("hypothesis_proposed"), rec.count("hypothesis_evaluated"))
	}
	if rec.count("cost_update") != 2 || rec.count("completed") != 1 || rec.count("error") != 0 {
		t.Fatalf("unexpected lifecycle events")
	}
	if last := rec.events[len(rec.events)-1]; last.Kind() != "completed" {
		t.Fatalf("expected completion last, got %s", last.Kind())
	}
	if repo.saves < 3 || repo.status != investigation.StatusCompleted {
		t.Fatalf("expected snapshots persisted, got %d saves (last %s)", repo.saves, repo.status)
	}
	if inv.Cost["input_tokens"] != int64(300) {
		t.Fatalf("expected cost snapshot on investigation, got %v", inv.Cost)
	}
}

func TestRoundDesignFailureReturnsHypothesisToProposed(t *testing.T) {
	planner := &stubPlanner{designErr: map[string]error{"b": errors.New("planner timeout")}}
	o := New(planner, &stubResearchers{}, registry(t), Config{})

	inv := investigation.New("p")
	a, _ := investigation.NewHypothesis("a", "", nil, 0.9)
	b, _ := investigation.NewHypothesis("b", "", nil, 0.7)
	inv.Hypotheses = []*investigation.Hypothesis{a, b}

	run, err := o.Begin(inv)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := run.Round(context.Background(), events.Discard); err != nil {
		t.Fatalf("Round: %v", err)
	}
	if b.Status != investigation.HypothesisProposed {
		t.Fatalf("expected design failure to return b to proposed, got %s", b.Status)
	}
	if a.Status != investigation.HypothesisSupported {
		t.Fatalf("expected a tested and supported, got %s", a.Status)
	}
	if len(inv.Experiments) != 1 {
		t.Fatalf("expected one experiment, got %d", len(inv.Experiments))
	}
}

func TestRoundEvaluationFailureLeavesTesting(t *testing.T) {
	planner := &stubPlanner{evalErr: map[string]error{"a": errors.New("bad json")}}
	o := New(planner, &stubResearchers{}, registry(t), Config{BatchSize: 1})

	inv := investigation.New("p")
	a, _ := investigation.NewHypothesis("a", "", nil, 0.9)
	b, _ := investigation.NewHypothesis("b", "", nil, 0.5)
	inv.Hypotheses = []*investigation.Hypothesis{a, b}

	run, err := o.Begin(inv)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := run.Round(context.Background(), events.Discard); err != nil {
			t.Fatalf("Round %d: %v", i, err)
		}
	}
	if a.Status != investigation.HypothesisTesting {
		t.Fatalf("expected a left in testing, got %s", a.Status)
	}
	if len(planner.evaluated) != 2 || planner.evaluated[1] != "b" {
		t.Fatalf("expected a not reselected, evaluated %v", planner.evaluated)
	}
}

func TestRoundEmitsValidationMetrics(t *testing.T) {
	o := New(&stubPlanner{}, &stubResearchers{controls: true}, registry(t), Config{})
	inv := investigation.New("p")
	h, _ := investigation.NewHypothesis("a", "", nil, 0.5)
	inv.Hypotheses = []*investigation.Hypothesis{h}

	run, err := o.Begin(inv)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	var rec recorder
	if err := run.Round(context.Background(), rec.emit); err != nil {
		t.Fatalf("Round: %v", err)
	}
	var metrics *events.ValidationMetrics
	for _, ev := range rec.events {
		if m, ok := ev.(events.ValidationMetrics); ok {
			metrics = &m
		}
	}
	if metrics == nil || metrics.Quality != "excellent" || metrics.ZPrime == nil || metrics.PositiveN != 3 {
		t.Fatalf("expected excellent validation metrics, got %+v", metrics)
	}
}

func TestRunStopsWhenBudgetExhausted(t *testing.T) {
	maxTokens := int64(50)
	planner := &stubPlanner{proposed: []ProposedHypothesis{{Statement: "a"}, {Statement: "b"}, {Statement: "c"}}}
	o := New(planner, &stubResearchers{}, registry(t), Config{BatchSize: 1, Limits: budget.Config{MaxTokens: &maxTokens}})

	inv := investigation.New("p")
	var rec recorder
	if err := o.Run(context.Background(), inv, rec.emit); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(inv.Experiments) != 1 {
		t.Fatalf("expected budget to stop after one round, got %d experiments", len(inv.Experiments))
	}
	if inv.Status != investigation.StatusCompleted {
		t.Fatalf("budget exhaustion must still synthesize, got %s", inv.Status)
	}
	found := false
	for _, ev := range rec.events {
		if p, ok := ev.(events.PhaseStarted); ok && p.Phase == "budget_exhausted" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected budget_exhausted phase event")
	}
}

func TestRunFailsWhenFormulationFails(t *testing.T) {
	repo := &stubRepo{}
	o := New(&stubPlanner{formulateErr: errors.New("model down")}, &stubResearchers{}, registry(t), Config{}, WithRepository(repo))
	inv := investigation.New("p")
	var rec recorder
	err := o.Run(context.Background(), inv, rec.emit)
	if err == nil {
		t.Fatalf("expected error")
	}
	if inv.Status != investigation.StatusFailed || inv.Error == "" {
		t.Fatalf("expected failed investigation, got %s %q", inv.Status, inv.Error)
	}
	if rec.count("error") != 1 || repo.status != investigation.StatusFailed {
		t.Fatalf("expected error event and failed snapshot")
	}

	o = New(&stubPlanner{}, &stubResearchers{}, registry(t), Config{})
	if err := o.Run(context.Background(), investigation.New("p"), nil); !errors.Is(err, ErrNoHypotheses) {
		t.Fatalf("expected ErrNoHypotheses, got %v", err)
	}
}

func TestBeginFailsOnEmptyRegistry(t *testing.T) {
	o := New(&stubPlanner{}, &stubResearchers{}, domain.NewRegistry(), Config{})
	if _, err := o.Begin(investigation.New("p")); !errors.Is(err, domain.ErrEmptyRegistry) {
		t.Fatalf("expected ErrEmptyRegistry, got %v", err)
	}
}
