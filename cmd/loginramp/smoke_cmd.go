package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/FairForge/loginramp/internal/logger"
)

func newSmokeCmd(root *rootOptions) *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Check that the target answers, without ramping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.read()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("base-url") {
				cfg.Target.BaseURL = baseURL
			}
			if cfg.Target.BaseURL == "" {
				return errors.New("config: target.base_url is required")
			}

			log, err := logger.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			res, err := newChecker(cfg, log).Check(cmd.Context(), cfg.Target.HealthURL())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s answered %d in %s\n",
				color.GreenString("OK"), res.URL, res.StatusCode, res.Latency.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL of the application under test")
	return cmd
}
