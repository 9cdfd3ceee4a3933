package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Sequela02/ehrlich-sub001/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCMD().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCMD() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "ehrlich",
		Short:        "Hypothesis-driven investigation engine",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default searches ./config and .)")

	load := func() (*config.Config, error) { return config.Load(cfgPath) }
	root.AddCommand(
		domainsCMD(load),
		assayCMD(load),
		scheduleCMD(load),
		migrateCMD(load),
		eventsCMD(load),
		investigationCMD(load),
	)
	return root
}

type configLoader func() (*config.Config, error)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
