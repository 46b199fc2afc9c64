package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/tally/internal/config"
	"github.com/zulandar/tally/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "SQL report store commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the report tables",
		Long:  "Connects to the SQL store from storage.sql and auto-migrates the report tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to tally config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.Backend != config.BackendSQL {
		return fmt.Errorf("storage.backend is %q, db commands need %q", cfg.Storage.Backend, config.BackendSQL)
	}

	gormDB, err := db.Connect(cfg.Storage.SQL)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s store\n", cfg.Storage.SQL.Driver)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	return nil
}
