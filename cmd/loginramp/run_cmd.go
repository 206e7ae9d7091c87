package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FairForge/loginramp/internal/config"
	"github.com/FairForge/loginramp/internal/history"
	"github.com/FairForge/loginramp/internal/loadtest"
	"github.com/FairForge/loginramp/internal/logger"
	"github.com/FairForge/loginramp/internal/metrics"
	"github.com/FairForge/loginramp/internal/reporting"
)

var errRegression = errors.New("run regressed against the previous run")

type runOptions struct {
	baseURL          string
	username         string
	password         string
	maxConcurrency   int
	failureThreshold int
	sessionTimeout   time.Duration
	levelPause       time.Duration
	launchRate       float64
	reportDir        string
	formats          []string
	metricsAddr      string
	skipPreflight    bool
	noColor          bool
	failOnRegression bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ramp login concurrency and report the critical point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.read()
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runRamp(cmd, cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "base-url", "", "Base URL of the application under test")
	f.StringVar(&opts.username, "username", "", "Account username")
	f.StringVar(&opts.password, "password", "", "Account password")
	f.IntVar(&opts.maxConcurrency, "max-concurrency", 0, "Highest concurrency level to try")
	f.IntVar(&opts.failureThreshold, "failure-threshold", 0, "Consecutive poor levels that stop the ramp")
	f.DurationVar(&opts.sessionTimeout, "session-timeout", 0, "Time limit for one login session")
	f.DurationVar(&opts.levelPause, "level-pause", 0, "Pause between levels")
	f.Float64Var(&opts.launchRate, "launch-rate", 0, "Sessions started per second within a level (0 = all at once)")
	f.StringVar(&opts.reportDir, "report-dir", "", "Directory reports are written to")
	f.StringSliceVar(&opts.formats, "format", nil, "Report formats: json, csv, text")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	f.BoolVar(&opts.skipPreflight, "skip-preflight", false, "Do not check the target before ramping")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	f.BoolVar(&opts.failOnRegression, "fail-on-regression", false, "Exit non-zero when the run regressed against the previous one")
	return cmd
}

// apply overrides cfg with the flags that were set explicitly.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("base-url") {
		cfg.Target.BaseURL = o.baseURL
	}
	if f.Changed("username") {
		cfg.Target.Username = o.username
		cfg.Target.Accounts = nil
	}
	if f.Changed("password") {
		cfg.Target.Password = o.password
	}
	if f.Changed("max-concurrency") {
		cfg.Ramp.MaxConcurrency = o.maxConcurrency
	}
	if f.Changed("failure-threshold") {
		cfg.Ramp.FailureThreshold = o.failureThreshold
	}
	if f.Changed("session-timeout") {
		cfg.Ramp.SessionTimeout = o.sessionTimeout
	}
	if f.Changed("level-pause") {
		cfg.Ramp.LevelPause = o.levelPause
	}
	if f.Changed("launch-rate") {
		cfg.Ramp.LaunchRate = o.launchRate
	}
	if f.Changed("report-dir") {
		cfg.Report.Dir = o.reportDir
	}
	if f.Changed("format") {
		cfg.Report.Formats = o.formats
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}
}

func runRamp(cmd *cobra.Command, cfg *config.Config, opts *runOptions) error {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if opts.noColor {
		color.NoColor = true
	}
	out := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !opts.skipPreflight {
		if _, err := newChecker(cfg, log).Check(ctx, cfg.Target.HealthURL()); err != nil {
			return err
		}
	}

	store, err := openHistory(ctx, cfg, log)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	sinks, err := reportSinks(ctx, cfg)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(cfg.Ramp.RateThreshold)
	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, collector, log)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	factory, err := newDriverFactory(cfg, log)
	if err != nil {
		return err
	}
	orc, err := loadtest.NewOrchestrator(cfg.RunConfig(), factory, log, loadtest.WithObserver(collector))
	if err != nil {
		return err
	}

	run, err := orc.Run(ctx)
	if err != nil {
		return err
	}

	if err := reporting.NewGenerator(!color.NoColor).WriteText(out, run); err != nil {
		return err
	}

	// Reports and history are written even when the run was interrupted.
	postCtx := context.WithoutCancel(ctx)

	regressed := false
	if store != nil {
		regressed = compareWithPrevious(postCtx, out, store, run, log)
		if err := store.Save(postCtx, run); err != nil {
			log.Error("failed to save run history", zap.Error(err))
		}
	}

	locations, err := reporting.NewPublisher(cfg.Report.Formats, log, sinks...).Publish(postCtx, run)
	for _, loc := range locations {
		fmt.Fprintf(out, "Report written: %s\n", loc)
	}
	if err != nil {
		return err
	}

	if regressed && opts.failOnRegression {
		return errRegression
	}
	return nil
}

// compareWithPrevious prints the comparison against the newest stored run
// for the same endpoint and reports whether the new run regressed.
func compareWithPrevious(ctx context.Context, w io.Writer, store history.Store, run *loadtest.TestRun, log *zap.Logger) bool {
	prev, err := history.Latest(ctx, store, run.Config.Target.Endpoint)
	if errors.Is(err, history.ErrNotFound) {
		return false
	}
	if err != nil {
		log.Warn("could not read run history", zap.Error(err))
		return false
	}

	cmp := history.Compare(*prev, history.FromRun(run), nil)
	fmt.Fprintln(w)
	fmt.Fprint(w, cmp.GenerateReport())
	return cmp.OverallStatus == history.StatusRegression
}
