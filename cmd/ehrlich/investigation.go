package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sequela02/ehrlich-sub001/internal/assay"
	"github.com/Sequela02/ehrlich-sub001/internal/store"
	"github.com/spf13/cobra"
)

func investigationCMD(load configLoader) *cobra.Command {
	var timeout time.Duration
	show := &cobra.Command{
		Use:   "show <investigation-id>",
		Short: "Print a persisted investigation with its assay quality",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			st, err := store.Open(ctx, cfg.Storage.Postgres)
			if err != nil {
				return err
			}
			defer st.Close()

			inv, err := st.GetInvestigation(ctx, args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("investigation %s not found", args[0])
			}
			if err != nil {
				return err
			}
			pos, neg := inv.ControlScores()
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"investigation": inv,
				"validation":    assay.ZPrime(pos, neg, cfg.Assay.MinControls),
			})
		},
	}
	show.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")

	cmd := &cobra.Command{Use: "investigation", Short: "Inspect persisted investigations"}
	cmd.AddCommand(show)
	return cmd
}
