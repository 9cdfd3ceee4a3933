package main

import (
	"fmt"

	"github.com/Sequela02/ehrlich-sub001/internal/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func domainsCMD(load configLoader) *cobra.Command {
	registry := func() (*domain.Registry, error) {
		cfg, err := load()
		if err != nil {
			return nil, err
		}
		return domain.NewDefaultRegistry(cfg.Domains.Dir)
	}

	cmd := &cobra.Command{Use: "domains", Short: "Inspect registered research domains"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List domain names and their categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registry()
			if err != nil {
				return err
			}
			for _, d := range reg.All() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-22s %v\n", d.Name, d.Categories)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Print one domain definition as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry()
			if err != nil {
				return err
			}
			d, err := reg.Get(args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(d)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "detect <category>...",
		Short: "Resolve categories to a domain, merging when several match",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry()
			if err != nil {
				return err
			}
			d, err := reg.DetectMany(args)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), d)
		},
	})
	return cmd
}
