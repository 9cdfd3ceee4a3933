package research

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/Sequela02/ehrlich-sub001/internal/dispatch"
	"github.com/Sequela02/ehrlich-sub001/internal/events"
	"github.com/Sequela02/ehrlich-sub001/internal/investigation"
	"github.com/Sequela02/ehrlich-sub001/internal/runner"
)

// Tools handled by the researcher itself because they mutate the investigation.
const (
	ToolRecordFinding      = "record_finding"
	ToolRecordCandidate    = "record_candidate"
	ToolRecordControl      = "record_control"
	ToolConcludeExperiment = "conclude_experiment"
)

func object(required []string, props map[string]any) map[string]any {
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

var builtinDefinitions = []ToolDefinition{
	{
		Name:        ToolRecordFinding,
		Description: "Record an observation that bears on the hypothesis under test.",
		InputSchema: object([]string{"title", "detail"}, map[string]any{
			"title":         prop("string", "Short headline of the finding"),
			"detail":        prop("string", "What was observed and how"),
			"evidence_type": map[string]any{"type": "string", "enum": []string{"supporting", "contradicting", "neutral"}},
			"source":        prop("string", "Tool or database the evidence came from"),
			"citation":      prop("string", "DOI, PMID, or URL"),
		}),
	},
	{
		Name:        ToolRecordCandidate,
		Description: "Record or update a ranked candidate surfaced by this experiment.",
		InputSchema: object([]string{"identifier"}, map[string]any{
			"identifier": prop("string", "Domain identifier of the candidate"),
			"name":       prop("string", "Human readable name"),
			"scores":     prop("object", "Numeric scores keyed by score column"),
			"attributes": prop("object", "String attributes keyed by attribute key"),
			"rank":       prop("integer", "1 is best"),
		}),
	},
	{
		Name:        ToolRecordControl,
		Description: "Record a control with a known expected outcome and its observed score.",
		InputSchema: object([]string{"identifier", "kind", "score"}, map[string]any{
			"identifier": prop("string", "Domain identifier of the control"),
			"name":       prop("string", "Human readable name"),
			"kind":       map[string]any{"type": "string", "enum": []string{"positive", "negative"}},
			"score":      prop("number", "Observed score"),
			"source":     prop("string", "Where the score came from"),
		}),
	},
	{
		Name:        ToolConcludeExperiment,
		Description: "Finish the experiment with a verdict on the hypothesis.",
		InputSchema: object([]string{"conclusion"}, map[string]any{
			"supports_hypothesis": prop("boolean", "Whether the evidence supports the hypothesis"),
			"conclusion":          prop("string", "Summary of what the experiment showed"),
		}),
	},
}

var specialDefinitions = []ToolDefinition{
	{
		Name:        dispatch.ToolQueryUploadedData,
		Description: "Query a file the user uploaded for this investigation.",
		InputSchema: object([]string{"file_id"}, map[string]any{
			"file_id":       prop("string", "Uploaded file id"),
			"filter_column": prop("string", "Column to filter on"),
			"filter_op":     map[string]any{"type": "string", "enum": []string{"eq", "ne", "gt", "gte", "lt", "lte", "contains"}},
			"filter_value":  prop("string", "Value to compare against"),
			"columns":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"head":          prop("integer", "Maximum rows to return"),
			"search":        prop("string", "Substring to look for in document text"),
		}),
	},
	{
		Name:        dispatch.ToolSearchPriorFindings,
		Description: "Full-text search over findings from earlier investigations.",
		InputSchema: object([]string{"query"}, map[string]any{
			"query": prop("string", "Search terms"),
			"limit": prop("integer", "Maximum results"),
		}),
	},
}

func isBuiltin(name string) bool {
	switch name {
	case ToolRecordFinding, ToolRecordCandidate, ToolRecordControl, ToolConcludeExperiment:
		return true
	}
	return false
}

// builtin executes a researcher-owned tool. concluded is set by conclude_experiment.
func builtin(shared *investigation.Shared, task runner.Task, call ToolCall, emit events.Emit) (result string, concluded bool, err error) {
	args := call.Input
	switch call.Name {
	case ToolRecordFinding:
		title := stringArg(args, "title")
		if title == "" {
			return "", false, fmt.Errorf("title is required")
		}
		evidence := investigation.EvidenceType(stringArg(args, "evidence_type"))
		switch evidence {
		case investigation.EvidenceSupporting, investigation.EvidenceContradicting:
		default:
			evidence = investigation.EvidenceNeutral
		}
		f := shared.AddFinding(investigation.Finding{
			HypothesisID: task.Hypothesis.ID,
			ExperimentID: task.Experiment.ID,
			Title:        title,
			Detail:       stringArg(args, "detail"),
			EvidenceType: evidence,
			Source:       stringArg(args, "source"),
			Citation:     stringArg(args, "citation"),
		})
		emit(events.FindingRecorded{Finding: f})
		return encode(map[string]any{"status": "recorded", "finding_id": f.ID}), false, nil

	case ToolRecordCandidate:
		id := stringArg(args, "identifier")
		if id == "" {
			return "", false, fmt.Errorf("identifier is required")
		}
		c := investigation.Candidate{Identifier: id, Name: stringArg(args, "name")}
		if scores, ok := args["scores"].(map[string]any); ok {
			c.Scores = map[string]float64{}
			for k, v := range scores {
				if f, ok := toFloat(v); ok {
					c.Scores[k] = f
				}
			}
		}
		if attrs, ok := args["attributes"].(map[string]any); ok {
			c.Attributes = map[string]string{}
			for k, v := range attrs {
				c.Attributes[k] = fmt.Sprint(v)
			}
		}
		if rank, ok := toFloat(args["rank"]); ok {
			c.Rank = int(rank)
		}
		shared.AddCandidate(c)
		return encode(map[string]any{"status": "recorded", "identifier": id}), false, nil

	case ToolRecordControl:
		id := stringArg(args, "identifier")
		score, ok := toFloat(args["score"])
		if id == "" || !ok {
			return "", false, fmt.Errorf("identifier and numeric score are required")
		}
		kind := investigation.ControlKind(stringArg(args, "kind"))
		if kind != investigation.ControlPositive && kind != investigation.ControlNegative {
			return "", false, fmt.Errorf("kind must be positive or negative, got %q", kind)
		}
		shared.AddControl(investigation.Control{
			Identifier: id,
			Name:       stringArg(args, "name"),
			Kind:       kind,
			Score:      score,
			Source:     stringArg(args, "source"),
		})
		return encode(map[string]any{"status": "recorded", "identifier": id, "kind": string(kind)}), false, nil

	case ToolConcludeExperiment:
		conclusion := stringArg(args, "conclusion")
		if conclusion == "" {
			return "", false, fmt.Errorf("conclusion is required")
		}
		var supports *bool
		if v, ok := args["supports_hypothesis"].(bool); ok {
			supports = &v
		}
		shared.ConcludeExperiment(task.Experiment, supports, conclusion)
		return encode(map[string]any{"status": "concluded"}), true, nil
	}
	return "", false, fmt.Errorf("unknown built-in %s", call.Name)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func encode(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(raw)
}

func errorResult(tool string, err error) string {
	return encode(map[string]any{"error": err.Error(), "tool": tool})
}
