// Package orchestrator runs an investigation round by round: select
// hypotheses, design and run experiments, evaluate, and grow the tree.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sequela02/ehrlich-sub001/internal/assay"
	"github.com/Sequela02/ehrlich-sub001/internal/budget"
	"github.com/Sequela02/ehrlich-sub001/internal/domain"
	"github.com/Sequela02/ehrlich-sub001/internal/events"
	"github.com/Sequela02/ehrlich-sub001/internal/investigation"
	"github.com/Sequela02/ehrlich-sub001/internal/runner"
	"github.com/Sequela02/ehrlich-sub001/internal/scheduler"
	"github.com/Sequela02/ehrlich-sub001/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ErrNoHypotheses is returned when the planner proposes nothing to test.
var ErrNoHypotheses = errors.New("planner proposed no hypotheses")

// ProposedHypothesis is a root hypothesis suggested by the planner.
type ProposedHypothesis struct {
	Statement       string  `json:"statement"`
	Rationale       string  `json:"rationale"`
	PriorConfidence float64 `json:"prior_confidence"`
}

// Planner is the directing model. It never mutates the investigation.
type Planner interface {
	Formulate(ctx context.Context, inv *investigation.Investigation, dom domain.Config) ([]ProposedHypothesis, error)
	DesignExperiment(ctx context.Context, inv *investigation.Investigation, h *investigation.Hypothesis) (investigation.ExperimentDesign, error)
	Evaluate(ctx context.Context, inv *investigation.Investigation, h *investigation.Hypothesis, exp *investigation.Experiment) (scheduler.Evaluation, error)
	Synthesize(ctx context.Context, inv *investigation.Investigation) (string, error)
}

// Researchers builds the experiment session for one investigation.
type Researchers interface {
	For(dom domain.Config, acct *budget.Accountant) runner.Session
}

// Repository persists investigation snapshots.
type Repository interface {
	UpdateInvestigation(ctx context.Context, inv *investigation.Investigation) error
}

type Config struct {
	MaxDepth    int
	MaxRounds   int
	BatchSize   int
	MinControls int
	Limits      budget.Config
	Prices      budget.PriceTable
}

type Orchestrator struct {
	planner     Planner
	researchers Researchers
	domains     *domain.Registry
	sched       *scheduler.Scheduler
	batch       *runner.BatchRunner
	repo        Repository
	cfg         Config
	metrics     *telemetry.Metrics
	logger      *zap.Logger
}

type Option func(*Orchestrator)

func WithRepository(repo Repository) Option {
	return func(o *Orchestrator) { o.repo = repo }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l.Named("orchestrator")
		}
	}
}

// WithBatchRunner replaces the default batch runner.
func WithBatchRunner(r *runner.BatchRunner) Option {
	return func(o *Orchestrator) { o.batch = r }
}

func New(planner Planner, researchers Researchers, domains *domain.Registry, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 5
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > runner.MaxBatch {
		cfg.BatchSize = runner.MaxBatch
	}
	if cfg.MinControls <= 0 {
		cfg.MinControls = assay.DefaultMinControls
	}
	o := &Orchestrator{
		planner:     planner,
		researchers: researchers,
		domains:     domains,
		sched:       scheduler.New(cfg.MaxDepth),
		cfg:         cfg,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.batch == nil {
		o.batch = runner.New(runner.WithLogger(o.logger), runner.WithMetrics(o.metrics))
	}
	return o
}

// Run is the state of one investigation being driven by the orchestrator.
type Run struct {
	o       *Orchestrator
	inv     *investigation.Investigation
	shared  *investigation.Shared
	acct    *budget.Accountant
	domain  domain.Config
	session runner.Session
	rounds  int
	log     *zap.Logger
}

// Begin prepares inv for execution. inv.Domain names a registered domain or
// a category; an unknown value falls back to the first registered domain.
func (o *Orchestrator) Begin(inv *investigation.Investigation) (*Run, error) {
	dom, err := o.resolveDomain(inv.Domain)
	if err != nil {
		return nil, err
	}
	inv.Domain = dom.Name
	acct := budget.NewAccountant(o.cfg.Prices)
	return &Run{
		o:       o,
		inv:     inv,
		shared:  investigation.NewShared(inv, &sync.Mutex{}),
		acct:    acct,
		domain:  dom,
		session: o.researchers.For(dom, acct),
		log:     o.logger.With(zap.String("investigation_id", inv.ID)),
	}, nil
}

func (o *Orchestrator) resolveDomain(name string) (domain.Config, error) {
	if name != "" {
		if cfg, err := o.domains.Get(name); err == nil {
			return cfg, nil
		}
	}
	return o.domains.Detect(name)
}

// Accountant exposes the run's usage.
func (r *Run) Accountant() *budget.Accountant { return r.acct }

// Run drives inv to completion: formulate, run rounds while the tree has
// testable hypotheses and the budget allows, then synthesize.
func (o *Orchestrator) Run(ctx context.Context, inv *investigation.Investigation, emit events.Emit) error {
	if emit == nil {
		emit = events.Discard
	}
	run, err := o.Begin(inv)
	if err != nil {
		return err
	}
	return run.Execute(ctx, emit)
}

// Execute runs the whole investigation.
func (r *Run) Execute(ctx context.Context, emit events.Emit) error {
	ctx, span := telemetry.Tracer("orchestrator").Start(ctx, "orchestrator.investigation")
	span.SetAttributes(attribute.String("investigation_id", r.inv.ID), attribute.String("domain", r.domain.Name))
	defer span.End()

	r.shared.Update(func(inv *investigation.Investigation) {
		inv.Status = investigation.StatusRunning
		inv.Error = ""
	})
	r.persist(ctx)

	if len(r.inv.Hypotheses) == 0 {
		if err := r.formulate(ctx, emit); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return r.fail(ctx, err, emit)
		}
	}

	for r.rounds < r.o.cfg.MaxRounds {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, err, emit)
		}
		var more bool
		r.shared.View(func(inv *investigation.Investigation) { more = r.o.sched.ShouldContinue(inv.Hypotheses) })
		if !more {
			break
		}
		if err := r.acct.Check(r.o.cfg.Limits, r.acct.Elapsed()); err != nil {
			r.log.Info("budget exhausted, moving to synthesis", zap.Error(err))
			emit(events.PhaseStarted{Phase: "budget_exhausted", Description: err.Error()})
			break
		}
		if err := r.Round(ctx, emit); err != nil {
			return r.fail(ctx, err, emit)
		}
	}

	emit(events.PhaseStarted{Phase: "synthesis", Description: "Synthesizing findings"})
	summary, err := r.o.planner.Synthesize(ctx, r.inv)
	if err != nil {
		span.RecordError(err)
		return r.fail(ctx, fmt.Errorf("synthesize: %w", err), emit)
	}

	cost := r.acct.ToMap()
	var done events.InvestigationCompleted
	r.shared.Update(func(inv *investigation.Investigation) {
		inv.Summary = summary
		inv.Cost = cost
		inv.Status = investigation.StatusCompleted
		done = events.InvestigationCompleted{
			InvestigationID: inv.ID,
			Summary:         summary,
			Candidates:      len(inv.Candidates),
			Findings:        len(inv.Findings),
			Cost:            cost,
		}
	})
	r.persist(ctx)
	emit(done)
	r.log.Info("investigation completed", zap.Int("rounds", r.rounds), zap.Float64("cost", r.acct.TotalCost()))
	return nil
}

func (r *Run) formulate(ctx context.Context, emit events.Emit) error {
	emit(events.PhaseStarted{Phase: "hypothesis_formulation", Description: "Formulating hypotheses"})
	proposed, err := r.o.planner.Formulate(ctx, r.inv, r.domain)
	if err != nil {
		return fmt.Errorf("formulate hypotheses: %w", err)
	}
	var added []*investigation.Hypothesis
	for _, p := range proposed {
		h, err := investigation.NewHypothesis(p.Statement, p.Rationale, nil, p.PriorConfidence)
		if err != nil {
			r.log.Warn("dropping proposed hypothesis", zap.Error(err))
			continue
		}
		added = append(added, h)
	}
	if len(added) == 0 {
		return ErrNoHypotheses
	}
	r.shared.Update(func(inv *investigation.Investigation) {
		inv.Hypotheses = append(inv.Hypotheses, added...)
		r.o.sched.Rescore(inv)
	})
	for _, h := range added {
		emit(events.HypothesisProposed{Hypothesis: *h})
	}
	return nil
}

// Round runs one select, design, execute, evaluate cycle. Planner failures
// for individual hypotheses are logged and never abort the round.
func (r *Run) Round(ctx context.Context, emit events.Emit) error {
	r.rounds++
	ctx, span := telemetry.Tracer("orchestrator").Start(ctx, "orchestrator.round")
	span.SetAttributes(attribute.Int("round", r.rounds))
	defer span.End()

	var selected []*investigation.Hypothesis
	r.shared.Update(func(inv *investigation.Investigation) {
		r.o.sched.Rescore(inv)
		selected = r.o.sched.SelectNext(inv.Hypotheses)
		if len(selected) > r.o.cfg.BatchSize {
			selected = selected[:r.o.cfg.BatchSize]
		}
		for _, h := range selected {
			h.Status = investigation.HypothesisTesting
		}
	})
	if len(selected) == 0 {
		return nil
	}
	emit(events.PhaseStarted{Phase: "experimentation", Description: fmt.Sprintf("Round %d: testing %d hypotheses", r.rounds, len(selected))})

	tasks := make([]runner.Task, 0, len(selected))
	for _, h := range selected {
		design, err := r.o.planner.DesignExperiment(ctx, r.inv, h)
		var exp *investigation.Experiment
		if err == nil {
			exp, err = investigation.NewExperiment(h.ID, design)
		}
		if err != nil {
			r.log.Warn("experiment design failed", zap.String("hypothesis_id", h.ID), zap.Error(err))
			r.shared.Update(func(*investigation.Investigation) { h.Status = investigation.HypothesisProposed })
			continue
		}
		r.shared.Update(func(inv *investigation.Investigation) { inv.Experiments = append(inv.Experiments, exp) })
		tasks = append(tasks, runner.Task{Hypothesis: h, Experiment: exp, Design: design})
	}
	if len(tasks) == 0 {
		return nil
	}

	if _, err := r.o.batch.Run(ctx, r.session, r.shared, tasks, emit); err != nil {
		return err
	}

	emit(events.PhaseStarted{Phase: "evaluation", Description: fmt.Sprintf("Round %d: evaluating results", r.rounds)})
	for _, task := range tasks {
		r.evaluate(ctx, task, emit)
	}
	r.validate(emit)

	cost := r.acct.ToMap()
	r.shared.Update(func(inv *investigation.Investigation) { inv.Cost = cost })
	emit(events.CostUpdated{Cost: cost})
	r.persist(ctx)
	return nil
}

func (r *Run) evaluate(ctx context.Context, task runner.Task, emit events.Emit) {
	h := task.Hypothesis
	eval, err := r.o.planner.Evaluate(ctx, r.inv, h, task.Experiment)
	if err != nil {
		r.log.Warn("evaluation failed", zap.String("hypothesis_id", h.ID), zap.Error(err))
		return
	}
	var (
		added     []*investigation.Hypothesis
		evaluated events.HypothesisEvaluated
	)
	r.shared.Update(func(inv *investigation.Investigation) {
		added = r.o.sched.ApplyEvaluation(h, eval, inv)
		evaluated = events.HypothesisEvaluated{
			HypothesisID: h.ID,
			Status:       h.Status,
			Action:       string(eval.Action),
			Confidence:   h.Confidence,
			Certainty:    h.CertaintyOfEvidence,
			Reasoning:    eval.Reasoning,
		}
	})
	emit(evaluated)
	for _, child := range added {
		emit(events.HypothesisProposed{Hypothesis: *child})
	}
}

// validate emits Z' metrics once both control sets are large enough.
func (r *Run) validate(emit events.Emit) {
	var pos, neg []float64
	r.shared.View(func(inv *investigation.Investigation) { pos, neg = inv.ControlScores() })
	if len(pos) < r.o.cfg.MinControls || len(neg) < r.o.cfg.MinControls {
		return
	}
	res := assay.ZPrime(pos, neg, r.o.cfg.MinControls)
	if !res.Usable() {
		r.log.Warn("controls are not separable", zap.String("quality", string(res.Quality)))
	}
	emit(events.ValidationMetrics{
		ZPrime:    res.ZPrime,
		Quality:   string(res.Quality),
		PositiveN: res.PositiveN,
		NegativeN: res.NegativeN,
	})
}

func (r *Run) fail(ctx context.Context, cause error, emit events.Emit) error {
	r.log.Error("investigation failed", zap.Error(cause))
	cost := r.acct.ToMap()
	r.shared.Update(func(inv *investigation.Investigation) {
		inv.Status = investigation.StatusFailed
		inv.Error = cause.Error()
		inv.Cost = cost
	})
	r.persist(context.WithoutCancel(ctx))
	emit(events.InvestigationError{InvestigationID: r.inv.ID, Error: cause.Error()})
	return cause
}

func (r *Run) persist(ctx context.Context) {
	if r.o.repo == nil {
		return
	}
	// Only called between batches, when no experiment task holds the investigation.
	if err := r.o.repo.UpdateInvestigation(ctx, r.inv); err != nil {
		r.log.Warn("persist investigation failed", zap.Error(err))
	}
}
