package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/tally/internal/config"
	"github.com/zulandar/tally/internal/report"
)

func newHeaderCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "header",
		Short: "Write the report header row",
		Long:  "Writes the report header row to the configured storage if it is missing, then exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeader(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to tally config file")
	return cmd
}

func runHeader(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := cmd.Context()
	store, err := createStore(ctx, cfg)
	if err != nil {
		return err
	}
	if err := store.sink.EnsureHeader(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Header ready (%s): %v\n", cfg.Storage.Backend, report.Header)
	return nil
}
