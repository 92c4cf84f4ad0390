package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/diagnostics"
)

func newDiagnosticsCmd() *cobra.Command {
	var (
		configPath string
		limit      int
		summary    bool
	)

	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "List recorded session errors",
		Long:  "Lists diagnostic records persisted by earlier sessions. Requires diagnostics.driver in the config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnostics(cmd, configPath, limit, summary)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum records to show")
	cmd.Flags().BoolVar(&summary, "summary", false, "show counts per kind instead of records")
	return cmd
}

func runDiagnostics(cmd *cobra.Command, configPath string, limit int, summary bool) error {
	cfg, err := loadConfig(configPath, "")
	if err != nil {
		return err
	}
	if cfg.Diagnostics.Driver == "" {
		return fmt.Errorf("diagnostics: no diagnostics.driver configured in %s", configPath)
	}
	gormDB, err := openDiagnosticsDB(cfg.Diagnostics)
	if err != nil {
		return fmt.Errorf("diagnostics: %w", err)
	}
	defer closeDB(gormDB)
	store, err := diagnostics.NewStore(gormDB)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if summary {
		counts, err := store.CountByKind()
		if err != nil {
			return err
		}
		kinds := make([]string, 0, len(counts))
		for k := range counts {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(out, "%-10s %d\n", k, counts[diagnostics.Kind(k)])
		}
		return nil
	}

	records, err := store.Recent(limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No diagnostics recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tUSER\tMESSAGE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.At.Format(time.DateTime), r.Kind, r.Username, r.Message)
	}
	return tw.Flush()
}
