package investigation

import (
	"errors"
	"time"
)

// Status of an investigation run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// HypothesisStatus tracks where a hypothesis sits in the test/evaluate cycle.
type HypothesisStatus string

const (
	HypothesisProposed  HypothesisStatus = "proposed"
	HypothesisTesting   HypothesisStatus = "testing"
	HypothesisSupported HypothesisStatus = "supported"
	HypothesisRefuted   HypothesisStatus = "refuted"
	HypothesisRevised   HypothesisStatus = "revised"
	HypothesisRejected  HypothesisStatus = "rejected"
)

// Resolved reports whether the status is a terminal experimental outcome.
func (s HypothesisStatus) Resolved() bool {
	return s == HypothesisSupported || s == HypothesisRefuted
}

// Valid reports whether s is a known hypothesis status.
func (s HypothesisStatus) Valid() bool {
	switch s {
	case HypothesisProposed, HypothesisTesting, HypothesisSupported, HypothesisRefuted, HypothesisRevised, HypothesisRejected:
		return true
	}
	return false
}

// Certainty is a GRADE-style certainty-of-evidence rating. The zero value means unset.
type Certainty string

const (
	CertaintyUnset    Certainty = ""
	CertaintyVeryLow  Certainty = "very_low"
	CertaintyLow      Certainty = "low"
	CertaintyModerate Certainty = "moderate"
	CertaintyHigh     Certainty = "high"
)

// Valid reports whether c is a known rating (including unset).
func (c Certainty) Valid() bool {
	switch c {
	case CertaintyUnset, CertaintyVeryLow, CertaintyLow, CertaintyModerate, CertaintyHigh:
		return true
	}
	return false
}

// ExperimentStatus tracks a single experiment run.
type ExperimentStatus string

const (
	ExperimentPlanned   ExperimentStatus = "planned"
	ExperimentRunning   ExperimentStatus = "running"
	ExperimentCompleted ExperimentStatus = "completed"
	ExperimentFailed    ExperimentStatus = "failed"
)

// EvidenceType classifies how a finding bears on its hypothesis.
type EvidenceType string

const (
	EvidenceSupporting    EvidenceType = "supporting"
	EvidenceContradicting EvidenceType = "contradicting"
	EvidenceNeutral       EvidenceType = "neutral"
)

// ControlKind distinguishes positive from negative assay controls.
type ControlKind string

const (
	ControlPositive ControlKind = "positive"
	ControlNegative ControlKind = "negative"
)

var (
	ErrEmptyStatement    = errors.New("hypothesis statement is empty")
	ErrMissingHypothesis = errors.New("experiment requires a hypothesis id")
	ErrEmptyDescription  = errors.New("experiment description is empty")
)

// Investigation is the aggregate root for one user-initiated run.
type Investigation struct {
	ID               string         `json:"id"`
	Prompt           string         `json:"prompt"`
	Status           Status         `json:"status"`
	Domain           string         `json:"domain,omitempty"`
	Hypotheses       []*Hypothesis  `json:"hypotheses"`
	Experiments      []*Experiment  `json:"experiments"`
	Findings         []Finding      `json:"findings"`
	Candidates       []Candidate    `json:"candidates"`
	NegativeControls []Control      `json:"negative_controls"`
	PositiveControls []Control      `json:"positive_controls"`
	Citations        []string       `json:"citations"`
	Summary          string         `json:"summary"`
	Cost             map[string]any `json:"cost,omitempty"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Hypothesis is one node of the hypothesis tree.
type Hypothesis struct {
	ID                  string           `json:"id"`
	Statement           string           `json:"statement"`
	Rationale           string           `json:"rationale"`
	Status              HypothesisStatus `json:"status"`
	ParentID            string           `json:"parent_id,omitempty"`
	Depth               int              `json:"depth"`
	Children            []string         `json:"children,omitempty"`
	// BranchedFrom is the hypothesis this one was offered as an alternative to.
	BranchedFrom        string           `json:"branched_from,omitempty"`
	BranchScore         float64          `json:"branch_score"`
	PriorConfidence     float64          `json:"prior_confidence"`
	Confidence          float64          `json:"confidence"`
	CertaintyOfEvidence Certainty        `json:"certainty_of_evidence"`
}

// Protocol is the pre-registered design of an experiment.
type Protocol struct {
	IndependentVariable string   `json:"independent_variable,omitempty"`
	DependentVariable   string   `json:"dependent_variable,omitempty"`
	Controls            []string `json:"controls,omitempty"`
	Confounders         []string `json:"confounders,omitempty"`
	AnalysisPlan        string   `json:"analysis_plan,omitempty"`
	SuccessCriteria     string   `json:"success_criteria,omitempty"`
	FailureCriteria     string   `json:"failure_criteria,omitempty"`
}

// ExperimentDesign is what the planner hands back when asked to test a hypothesis.
type ExperimentDesign struct {
	Description string         `json:"description"`
	ToolPlan    []string       `json:"tool_plan"`
	Protocol    Protocol       `json:"protocol"`
	Notes       string         `json:"notes,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Experiment tests exactly one hypothesis.
type Experiment struct {
	ID                 string           `json:"id"`
	HypothesisID       string           `json:"hypothesis_id"`
	Description        string           `json:"description"`
	Status             ExperimentStatus `json:"status"`
	ToolPlan           []string         `json:"tool_plan"`
	Protocol           Protocol         `json:"protocol"`
	SupportsHypothesis *bool            `json:"supports_hypothesis,omitempty"`
	Conclusion         string           `json:"conclusion,omitempty"`
	Error              string           `json:"error,omitempty"`
}

// Finding is a recorded observation produced while running an experiment.
type Finding struct {
	ID           string       `json:"id"`
	HypothesisID string       `json:"hypothesis_id"`
	ExperimentID string       `json:"experiment_id,omitempty"`
	Title        string       `json:"title"`
	Detail       string       `json:"detail"`
	EvidenceType EvidenceType `json:"evidence_type"`
	Source       string       `json:"source,omitempty"`
	Citation     string       `json:"citation,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// FindingRecord is a finding as returned by a cross-investigation search.
type FindingRecord struct {
	InvestigationID string  `json:"investigation_id"`
	Finding         Finding `json:"finding"`
	Score           float64 `json:"score"`
}

// Candidate is a ranked entity (compound, intervention, program...) surfaced by experiments.
type Candidate struct {
	Identifier string             `json:"identifier"`
	Name       string             `json:"name,omitempty"`
	Scores     map[string]float64 `json:"scores,omitempty"`
	Attributes map[string]string  `json:"attributes,omitempty"`
	Rank       int                `json:"rank"`
}

// Control is a reference entity with a known expected outcome.
type Control struct {
	Identifier string      `json:"identifier"`
	Name       string      `json:"name,omitempty"`
	Kind       ControlKind `json:"kind"`
	Score      float64     `json:"score"`
	Source     string      `json:"source,omitempty"`
}
