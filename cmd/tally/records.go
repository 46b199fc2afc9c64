package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/tally/internal/config"
)

func newRecordsCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List recent report rows",
		Long:  "Prints the most recent rows of the SQL report store, newest first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecords(cmd, configPath, limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to tally config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of rows to show")
	return cmd
}

func runRecords(cmd *cobra.Command, configPath string, limit int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.Backend != config.BackendSQL {
		return fmt.Errorf("storage.backend is %q, records needs %q", cfg.Storage.Backend, config.BackendSQL)
	}
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	table, err := openTable(cfg.Storage.SQL)
	if err != nil {
		return err
	}
	rows, err := table.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(out, "No records.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIMESTAMP\tSUPERVISOR\tCLIENT\tDEPARTMENT\tITEM\tQTY")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ID, r.Timestamp, r.Supervisor, r.Client, r.Department, r.Item, r.Quantity)
	}
	return w.Flush()
}
