package events

import "encoding/json"

const previewLimit = 500

// WireEvent is the client-facing form: an event tag and a flat payload.
type WireEvent struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// JSON encodes the event as one self-contained object.
func (w WireEvent) JSON() ([]byte, error) {
	return json.Marshal(w)
}

// Translate maps an internal event to its wire form. It reports false for
// events that have no wire representation.
func Translate(ev Event) (WireEvent, bool) {
	var data map[string]any
	switch e := ev.(type) {
	case PhaseStarted:
		data = map[string]any{"phase": e.Phase, "description": e.Description}
	case ToolCalled:
		data = map[string]any{
			"tool_name":     e.ToolName,
			"tool_input":    e.Args,
			"hypothesis_id": e.HypothesisID,
			"experiment_id": e.ExperimentID,
		}
	case ToolResult:
		data = map[string]any{
			"tool_name":      e.ToolName,
			"result_preview": truncate(e.Preview, previewLimit),
			"hypothesis_id":  e.HypothesisID,
			"experiment_id":  e.ExperimentID,
		}
	case FindingRecorded:
		data = map[string]any{
			"id":            e.Finding.ID,
			"title":         e.Finding.Title,
			"detail":        e.Finding.Detail,
			"hypothesis_id": e.Finding.HypothesisID,
			"experiment_id": e.Finding.ExperimentID,
			"evidence_type": string(e.Finding.EvidenceType),
			"source":        e.Finding.Source,
			"citation":      e.Finding.Citation,
		}
	case Thinking:
		data = map[string]any{"text": e.Text, "hypothesis_id": e.HypothesisID, "experiment_id": e.ExperimentID}
	case HypothesisProposed:
		data = map[string]any{
			"hypothesis_id":    e.Hypothesis.ID,
			"statement":        e.Hypothesis.Statement,
			"rationale":        e.Hypothesis.Rationale,
			"parent_id":        e.Hypothesis.ParentID,
			"depth":            e.Hypothesis.Depth,
			"prior_confidence": e.Hypothesis.PriorConfidence,
			"branch_score":     e.Hypothesis.BranchScore,
		}
	case HypothesisEvaluated:
		data = map[string]any{
			"hypothesis_id":         e.HypothesisID,
			"status":                string(e.Status),
			"action":                e.Action,
			"confidence":            e.Confidence,
			"certainty_of_evidence": string(e.Certainty),
			"reasoning":             e.Reasoning,
		}
	case ExperimentStarted:
		data = map[string]any{
			"experiment_id": e.ExperimentID,
			"hypothesis_id": e.HypothesisID,
			"description":   e.Description,
			"tool_plan":     e.ToolPlan,
		}
	case ExperimentCompleted:
		data = map[string]any{
			"experiment_id": e.ExperimentID,
			"hypothesis_id": e.HypothesisID,
			"conclusion":    e.Conclusion,
		}
		if e.Supports != nil {
			data["supports_hypothesis"] = *e.Supports
		}
	case ExperimentFailed:
		data = map[string]any{"experiment_id": e.ExperimentID, "hypothesis_id": e.HypothesisID, "error": e.Error}
	case CostUpdated:
		data = make(map[string]any, len(e.Cost))
		for k, v := range e.Cost {
			data[k] = v
		}
	case ValidationMetrics:
		data = map[string]any{
			"z_prime":    nil,
			"quality":    e.Quality,
			"positive_n": e.PositiveN,
			"negative_n": e.NegativeN,
		}
		if e.ZPrime != nil {
			data["z_prime"] = *e.ZPrime
		}
	case InvestigationCompleted:
		data = map[string]any{
			"investigation_id": e.InvestigationID,
			"summary":          e.Summary,
			"candidate_count":  e.Candidates,
			"finding_count":    e.Findings,
			"cost":             e.Cost,
		}
	case InvestigationError:
		data = map[string]any{"investigation_id": e.InvestigationID, "error": e.Error}
	default:
		return WireEvent{}, false
	}
	return WireEvent{Event: ev.Kind(), Data: data}, true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
