package research

import (
	"fmt"
	"strings"

	"github.com/Sequela02/ehrlich-sub001/internal/domain"
	"github.com/Sequela02/ehrlich-sub001/internal/investigation"
	"github.com/Sequela02/ehrlich-sub001/internal/runner"
)

func systemPrompt(dom domain.Config, task runner.Task) string {
	var b strings.Builder
	b.WriteString("You are a researcher running one experiment inside a larger scientific investigation.\n")
	if dom.DisplayName != "" {
		fmt.Fprintf(&b, "Discipline: %s.\n", dom.DisplayName)
	}
	if dom.CandidateLabel != "" {
		fmt.Fprintf(&b, "Candidates are %s, identified by %s.\n", dom.CandidateLabel, orDefault(dom.IdentifierLabel, dom.IdentifierType))
	}
	if len(dom.ScoreColumns) > 0 {
		keys := make([]string, 0, len(dom.ScoreColumns))
		for _, c := range dom.ScoreColumns {
			keys = append(keys, c.Key)
		}
		fmt.Fprintf(&b, "Score candidates using: %s.\n", strings.Join(keys, ", "))
	}
	if dom.ResearcherInstructions != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(dom.ResearcherInstructions))
		b.WriteString("\n")
	}

	b.WriteString("\nRecord every relevant observation with record_finding, ")
	b.WriteString("record controls with known outcomes with record_control, ")
	b.WriteString("and finish with conclude_experiment once the evidence is in.\n")

	if task.SiblingContext != "" {
		b.WriteString("\n")
		b.WriteString(task.SiblingContext)
		b.WriteString("\n")
	}
	return b.String()
}

func experimentBrief(task runner.Task) string {
	var b strings.Builder
	h, exp := task.Hypothesis, task.Experiment
	fmt.Fprintf(&b, "Hypothesis: %s\n", h.Statement)
	if h.Rationale != "" {
		fmt.Fprintf(&b, "Rationale: %s\n", h.Rationale)
	}
	fmt.Fprintf(&b, "\nExperiment: %s\n", exp.Description)
	writeProtocol(&b, exp.Protocol)
	if len(exp.ToolPlan) > 0 {
		fmt.Fprintf(&b, "Planned tools: %s\n", strings.Join(exp.ToolPlan, ", "))
	}
	if notes := strings.TrimSpace(task.Design.Notes); notes != "" {
		fmt.Fprintf(&b, "Planner notes: %s\n", notes)
	}
	return b.String()
}

func writeProtocol(b *strings.Builder, p investigation.Protocol) {
	line := func(label, v string) {
		if v != "" {
			fmt.Fprintf(b, "%s: %s\n", label, v)
		}
	}
	line("Independent variable", p.IndependentVariable)
	line("Dependent variable", p.DependentVariable)
	if len(p.Controls) > 0 {
		line("Controls", strings.Join(p.Controls, "; "))
	}
	if len(p.Confounders) > 0 {
		line("Confounders", strings.Join(p.Confounders, "; "))
	}
	line("Analysis plan", p.AnalysisPlan)
	line("Success criteria", p.SuccessCriteria)
	line("Failure criteria", p.FailureCriteria)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
