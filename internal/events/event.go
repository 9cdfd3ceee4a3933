// Package events defines the engine's internal lifecycle events, their wire
// form, and the sinks that publish them.
package events

import (
	"github.com/Sequela02/ehrlich-sub001/internal/investigation"
)

// Event is an internal lifecycle event. New variants may be added freely;
// Translate drops the ones it does not know.
type Event interface {
	Kind() string
}

type PhaseStarted struct {
	Phase       string
	Description string
}

type ToolCalled struct {
	ToolName     string
	Args         map[string]any
	HypothesisID string
	ExperimentID string
}

type ToolResult struct {
	ToolName     string
	Preview      string
	HypothesisID string
	ExperimentID string
}

type FindingRecorded struct {
	Finding investigation.Finding
}

type Thinking struct {
	Text         string
	HypothesisID string
	ExperimentID string
}

type HypothesisProposed struct {
	Hypothesis investigation.Hypothesis
}

type HypothesisEvaluated struct {
	HypothesisID string
	Status       investigation.HypothesisStatus
	Action       string
	Confidence   float64
	Certainty    investigation.Certainty
	Reasoning    string
}

type ExperimentStarted struct {
	ExperimentID string
	HypothesisID string
	Description  string
	ToolPlan     []string
}

type ExperimentCompleted struct {
	ExperimentID string
	HypothesisID string
	Supports     *bool
	Conclusion   string
}

type ExperimentFailed struct {
	ExperimentID string
	HypothesisID string
	Error        string
}

type CostUpdated struct {
	Cost map[string]any
}

type ValidationMetrics struct {
	ZPrime    *float64
	Quality   string
	PositiveN int
	NegativeN int
}

type InvestigationCompleted struct {
	InvestigationID string
	Summary         string
	Candidates      int
	Findings        int
	Cost            map[string]any
}

type InvestigationError struct {
	InvestigationID string
	Error           string
}

func (PhaseStarted) Kind() string           { return "phase_started" }
func (ToolCalled) Kind() string             { return "tool_called" }
func (ToolResult) Kind() string             { return "tool_result" }
func (FindingRecorded) Kind() string        { return "finding_recorded" }
func (Thinking) Kind() string               { return "thinking" }
func (HypothesisProposed) Kind() string     { return "hypothesis_proposed" }
func (HypothesisEvaluated) Kind() string    { return "hypothesis_evaluated" }
func (ExperimentStarted) Kind() string      { return "experiment_started" }
func (ExperimentCompleted) Kind() string    { return "experiment_completed" }
func (ExperimentFailed) Kind() string       { return "experiment_failed" }
func (CostUpdated) Kind() string            { return "cost_update" }
func (ValidationMetrics) Kind() string      { return "validation_metrics" }
func (InvestigationCompleted) Kind() string { return "completed" }
func (InvestigationError) Kind() string     { return "error" }
