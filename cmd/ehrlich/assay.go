package main

import (
	"github.com/Sequela02/ehrlich-sub001/internal/assay"
	"github.com/spf13/cobra"
)

func assayCMD(load configLoader) *cobra.Command {
	cmd := &cobra.Command{Use: "assay", Short: "Assay quality utilities"}

	var positive, negative []float64
	var minControls int
	zprime := &cobra.Command{
		Use:   "zprime",
		Short: "Compute Z' from positive and negative control scores",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if minControls <= 0 {
				cfg, err := load()
				if err != nil {
					return err
				}
				minControls = cfg.Assay.MinControls
			}
			return writeJSON(cmd.OutOrStdout(), assay.ZPrime(positive, negative, minControls))
		},
	}
	zprime.Flags().Float64SliceVar(&positive, "positive", nil, "positive control scores")
	zprime.Flags().Float64SliceVar(&negative, "negative", nil, "negative control scores")
	zprime.Flags().IntVar(&minControls, "min-controls", 0, "minimum controls per side (default from config)")
	cmd.AddCommand(zprime)
	return cmd
}
