// Package scheduler decides which hypotheses to test next and how the
// hypothesis tree grows after each evaluation.
package scheduler

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Sequela02/ehrlich-sub001/internal/investigation"
)

const (
	// DefaultMaxDepth bounds how deep the tree may be explored.
	DefaultMaxDepth = 3
	// BatchSize is the number of hypotheses tested concurrently per round.
	BatchSize = 2

	defaultPrior = 0.5
	depthPenalty = 0.2
	scoreScale   = 1e4
)

// evidenceBonus scales a child's score by how solid its parent's evidence was.
var evidenceBonus = map[investigation.Certainty]float64{
	investigation.CertaintyHigh:     1.3,
	investigation.CertaintyModerate: 1.1,
	investigation.CertaintyLow:      0.9,
	investigation.CertaintyVeryLow:  0.7,
	investigation.CertaintyUnset:    1.0,
}

// Action is what the planner wants done with an evaluated hypothesis.
type Action string

const (
	ActionDeepen Action = "deepen"
	ActionBranch Action = "branch"
	ActionPrune  Action = "prune"
)

// Evaluation is the planner's verdict on a tested hypothesis.
type Evaluation struct {
	Action Action `json:"action"`
	// Status optionally records the experimental outcome (supported, refuted, ...).
	Status     investigation.HypothesisStatus `json:"status,omitempty"`
	Revision   string                         `json:"revision,omitempty"`
	Confidence *float64                       `json:"confidence,omitempty"`
	Certainty  investigation.Certainty        `json:"certainty_of_evidence,omitempty"`
	Reasoning  string                         `json:"reasoning,omitempty"`
}

// Scheduler implements best-first selection over the hypothesis tree.
type Scheduler struct {
	maxDepth int
}

// New returns a scheduler. maxDepth <= 0 selects DefaultMaxDepth.
func New(maxDepth int) *Scheduler {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Scheduler{maxDepth: maxDepth}
}

// MaxDepth reports the configured depth bound.
func (s *Scheduler) MaxDepth() int { return s.maxDepth }

func (s *Scheduler) testable(h *investigation.Hypothesis) bool {
	return h != nil && h.Status == investigation.HypothesisProposed && h.Depth < s.maxDepth
}

// SelectNext returns up to BatchSize proposed hypotheses below the depth
// bound, ordered by descending stored branch score and then by depth.
func (s *Scheduler) SelectNext(hypotheses []*investigation.Hypothesis) []*investigation.Hypothesis {
	var pool []*investigation.Hypothesis
	for _, h := range hypotheses {
		if s.testable(h) {
			pool = append(pool, h)
		}
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].BranchScore != pool[j].BranchScore {
			return pool[i].BranchScore > pool[j].BranchScore
		}
		return pool[i].Depth < pool[j].Depth
	})
	if len(pool) > BatchSize {
		pool = pool[:BatchSize]
	}
	return pool
}

// ShouldContinue reports whether any hypothesis is still worth testing.
func (s *Scheduler) ShouldContinue(hypotheses []*investigation.Hypothesis) bool {
	for _, h := range hypotheses {
		if s.testable(h) {
			return true
		}
	}
	return false
}

// Rescore recomputes the branch score of every hypothesis in inv.
func (s *Scheduler) Rescore(inv *investigation.Investigation) {
	for _, h := range inv.Hypotheses {
		h.BranchScore = ComputeBranchScore(h, inv)
	}
}

// ComputeBranchScore is prior x depth discount x parent evidence bonus,
// rounded to four decimals. A zero prior is treated as unset (0.5).
func ComputeBranchScore(h *investigation.Hypothesis, inv *investigation.Investigation) float64 {
	prior := h.PriorConfidence
	if prior == 0 {
		prior = defaultPrior
	}
	discount := 1 / (1 + float64(h.Depth)*depthPenalty)
	bonus := 1.0
	if h.ParentID != "" {
		if parent := inv.Hypothesis(h.ParentID); parent != nil {
			if b, ok := evidenceBonus[parent.CertaintyOfEvidence]; ok {
				bonus = b
			}
		}
	}
	return math.Round(prior*discount*bonus*scoreScale) / scoreScale
}

// ApplyEvaluation folds an evaluation into h and grows the tree. New
// hypotheses are appended to inv and returned. Unknown actions prune.
func (s *Scheduler) ApplyEvaluation(h *investigation.Hypothesis, eval Evaluation, inv *investigation.Investigation) []*investigation.Hypothesis {
	if eval.Status.Valid() && eval.Status != investigation.HypothesisProposed && eval.Status != investigation.HypothesisTesting {
		h.Status = eval.Status
	}
	if eval.Confidence != nil {
		h.Confidence = investigation.Clamp01(*eval.Confidence)
	}
	if eval.Certainty != investigation.CertaintyUnset && eval.Certainty.Valid() {
		h.CertaintyOfEvidence = eval.Certainty
	}

	switch eval.Action {
	case ActionDeepen, ActionBranch:
		revision := strings.TrimSpace(eval.Revision)
		if !h.Status.Resolved() {
			h.Status = investigation.HypothesisRevised
		}
		if revision == "" {
			return nil
		}
		child := s.spawn(h, eval, revision, inv)
		if child == nil {
			return nil
		}
		inv.Hypotheses = append(inv.Hypotheses, child)
		return []*investigation.Hypothesis{child}
	default:
		if !h.Status.Resolved() {
			h.Status = investigation.HypothesisRejected
		}
		return nil
	}
}

func (s *Scheduler) spawn(h *investigation.Hypothesis, eval Evaluation, revision string, inv *investigation.Investigation) *investigation.Hypothesis {
	child, err := investigation.NewHypothesis(revision, "", nil, h.Confidence)
	if err != nil {
		return nil
	}

	var parent *investigation.Hypothesis
	if eval.Action == ActionDeepen {
		parent = h
		child.Rationale = annotate(fmt.Sprintf("Deepened from %q.", h.Statement), eval.Reasoning)
		child.ParentID = h.ID
		child.Depth = h.Depth + 1
	} else {
		parent = inv.Hypothesis(h.ParentID)
		child.Rationale = annotate(fmt.Sprintf("Alternative branch to %q.", h.Statement), eval.Reasoning)
		child.ParentID = h.ParentID
		child.Depth = h.Depth
		child.BranchedFrom = h.ID
	}
	if parent != nil {
		parent.Children = append(parent.Children, child.ID)
	}
	child.BranchScore = ComputeBranchScore(child, inv)
	return child
}

func annotate(origin, reasoning string) string {
	reasoning = strings.TrimSpace(reasoning)
	if reasoning == "" {
		return origin
	}
	return origin + " " + reasoning
}
