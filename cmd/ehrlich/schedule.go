package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Sequela02/ehrlich-sub001/internal/investigation"
	"github.com/Sequela02/ehrlich-sub001/internal/scheduler"
	"github.com/spf13/cobra"
)

type scheduledBranch struct {
	ID          string  `json:"id"`
	Statement   string  `json:"statement"`
	Depth       int     `json:"depth"`
	BranchScore float64 `json:"branch_score"`
}

type schedulePlan struct {
	Continue bool              `json:"continue"`
	Next     []scheduledBranch `json:"next"`
}

// planFor rescores inv and reports the batch the scheduler would test next.
func planFor(inv *investigation.Investigation, maxDepth int) schedulePlan {
	s := scheduler.New(maxDepth)
	s.Rescore(inv)
	plan := schedulePlan{Continue: s.ShouldContinue(inv.Hypotheses), Next: []scheduledBranch{}}
	for _, h := range s.SelectNext(inv.Hypotheses) {
		plan.Next = append(plan.Next, scheduledBranch{ID: h.ID, Statement: h.Statement, Depth: h.Depth, BranchScore: h.BranchScore})
	}
	return plan
}

func scheduleCMD(load configLoader) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show which hypotheses an investigation would test next",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var inv investigation.Investigation
			if err := json.Unmarshal(raw, &inv); err != nil {
				return fmt.Errorf("decode %s: %w", file, err)
			}
			return writeJSON(cmd.OutOrStdout(), planFor(&inv, cfg.Scheduler.MaxDepth))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "investigation JSON document")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
