package investigation

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// New creates a pending investigation for a research prompt.
func New(prompt string) *Investigation {
	return &Investigation{
		ID:        uuid.NewString(),
		Prompt:    strings.TrimSpace(prompt),
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// NewHypothesis builds a proposed hypothesis. A nil parent makes a root at depth 0.
func NewHypothesis(statement, rationale string, parent *Hypothesis, prior float64) (*Hypothesis, error) {
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return nil, ErrEmptyStatement
	}
	h := &Hypothesis{
		ID:              uuid.NewString(),
		Statement:       statement,
		Rationale:       strings.TrimSpace(rationale),
		Status:          HypothesisProposed,
		PriorConfidence: Clamp01(prior),
		Confidence:      Clamp01(prior),
	}
	if parent != nil {
		h.ParentID = parent.ID
		h.Depth = parent.Depth + 1
	}
	return h, nil
}

// NewExperiment creates a planned experiment for hypothesisID from a planner design.
func NewExperiment(hypothesisID string, design ExperimentDesign) (*Experiment, error) {
	if strings.TrimSpace(hypothesisID) == "" {
		return nil, ErrMissingHypothesis
	}
	desc := strings.TrimSpace(design.Description)
	if desc == "" {
		return nil, ErrEmptyDescription
	}
	plan := make([]string, 0, len(design.ToolPlan))
	for _, name := range design.ToolPlan {
		if name = strings.TrimSpace(name); name != "" {
			plan = append(plan, name)
		}
	}
	return &Experiment{
		ID:           uuid.NewString(),
		HypothesisID: hypothesisID,
		Description:  desc,
		Status:       ExperimentPlanned,
		ToolPlan:     plan,
		Protocol:     design.Protocol,
	}, nil
}

// Clamp01 pins v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Hypothesis returns the hypothesis with the given id, or nil.
func (inv *Investigation) Hypothesis(id string) *Hypothesis {
	if inv == nil || id == "" {
		return nil
	}
	for _, h := range inv.Hypotheses {
		if h.ID == id {
			return h
		}
	}
	return nil
}

// Experiment returns the experiment with the given id, or nil.
func (inv *Investigation) Experiment(id string) *Experiment {
	if inv == nil || id == "" {
		return nil
	}
	for _, e := range inv.Experiments {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// ControlScores splits the recorded control scores into positive and negative samples.
func (inv *Investigation) ControlScores() (positive, negative []float64) {
	for _, c := range inv.PositiveControls {
		positive = append(positive, c.Score)
	}
	for _, c := range inv.NegativeControls {
		negative = append(negative, c.Score)
	}
	return positive, negative
}

// Shared guards the investigation collections that concurrent experiment
// tasks append to. The lock is supplied by the caller and is held only for
// the duration of the callback; never call out to a model or data source
// from inside Update or View.
type Shared struct {
	mu  sync.Locker
	inv *Investigation
}

// NewShared wraps inv with lock. A nil lock gets a private mutex.
func NewShared(inv *Investigation, lock sync.Locker) *Shared {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	return &Shared{mu: lock, inv: inv}
}

// ID returns the investigation id, which is immutable after creation.
func (s *Shared) ID() string {
	return s.inv.ID
}

// Investigation exposes the underlying aggregate for read-only access to immutable fields.
func (s *Shared) Investigation() *Investigation {
	return s.inv
}

// Update runs fn with the lock held.
func (s *Shared) Update(fn func(inv *Investigation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.inv)
}

// View runs fn with the lock held. Callers must not retain references to slices.
func (s *Shared) View(fn func(inv *Investigation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.inv)
}

// AddFinding appends f, assigning an id and timestamp when missing.
func (s *Shared) AddFinding(f Finding) Finding {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if f.EvidenceType == "" {
		f.EvidenceType = EvidenceNeutral
	}
	s.Update(func(inv *Investigation) {
		inv.Findings = append(inv.Findings, f)
	})
	return f
}

// AddCandidate appends c, replacing an existing candidate with the same identifier.
func (s *Shared) AddCandidate(c Candidate) {
	s.Update(func(inv *Investigation) {
		for i := range inv.Candidates {
			if inv.Candidates[i].Identifier == c.Identifier {
				inv.Candidates[i] = c
				return
			}
		}
		inv.Candidates = append(inv.Candidates, c)
	})
}

// AddControl records a control on the side matching its kind.
func (s *Shared) AddControl(c Control) {
	s.Update(func(inv *Investigation) {
		if c.Kind == ControlPositive {
			inv.PositiveControls = append(inv.PositiveControls, c)
			return
		}
		c.Kind = ControlNegative
		inv.NegativeControls = append(inv.NegativeControls, c)
	})
}

// AddHypothesis appends h to the tree.
func (s *Shared) AddHypothesis(h *Hypothesis) {
	s.Update(func(inv *Investigation) {
		inv.Hypotheses = append(inv.Hypotheses, h)
	})
}

// SetExperimentStatus updates an experiment's status and error text.
func (s *Shared) SetExperimentStatus(exp *Experiment, status ExperimentStatus, errText string) {
	s.Update(func(*Investigation) {
		exp.Status = status
		exp.Error = errText
	})
}

// ConcludeExperiment stores the experiment verdict.
func (s *Shared) ConcludeExperiment(exp *Experiment, supports *bool, conclusion string) {
	s.Update(func(*Investigation) {
		exp.SupportsHypothesis = supports
		exp.Conclusion = conclusion
	})
}
