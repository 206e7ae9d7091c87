package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/FairForge/loginramp/internal/config"
	"github.com/FairForge/loginramp/internal/logger"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var (
		limit    int
		endpoint string
		runID    string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List earlier runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.read()
			if err != nil {
				return err
			}
			if cfg.History.Driver == config.HistoryNone {
				return errors.New("history is disabled (history.driver: none)")
			}

			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			store, err := openHistory(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			out := cmd.OutOrStdout()
			if runID != "" {
				rep, err := store.Report(cmd.Context(), runID)
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(rep, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}

			records, err := store.List(cmd.Context(), endpoint, limit)
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tENDPOINT\tLEVELS\tSTABLE\tCRITICAL\tSTOP")
			for _, r := range records {
				critical := "-"
				if r.HasCriticalPoint() {
					critical = fmt.Sprintf("%d (%s)", r.CriticalConcurrency, r.CriticalKind)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.RunID, r.StartTime.Format(time.RFC3339), r.Endpoint,
					r.Levels, r.MaxStableConcurrency, critical, r.StopReason)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show (0 = all)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Only show runs against this login URL")
	cmd.Flags().StringVar(&runID, "run", "", "Print the full JSON report of one run")
	return cmd
}
