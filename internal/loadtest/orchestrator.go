package loadtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Orchestrator drives the level-by-level ramp and assembles the TestRun.
type Orchestrator struct {
	config     RunConfig
	factory    DriverFactory
	executor   *Executor
	classifier *Classifier
	policy     Policy
	detector   Detector
	observer   Observer
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers an observer for sessions, levels and the run.
func WithObserver(o Observer) Option {
	return func(orc *Orchestrator) {
		if o != nil {
			orc.observer = o
		}
	}
}

// WithClassifier replaces the default error classifier.
func WithClassifier(c *Classifier) Option {
	return func(orc *Orchestrator) {
		orc.classifier = c
	}
}

// Validate checks that the run configuration is usable.
func (c RunConfig) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("%w: max concurrency must be at least 1, got %d", ErrInvalidConfig, c.MaxConcurrency)
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("%w: failure threshold must be at least 1, got %d", ErrInvalidConfig, c.FailureThreshold)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("%w: session timeout must be positive", ErrInvalidConfig)
	}
	if c.LevelPause < 0 {
		return fmt.Errorf("%w: level pause must not be negative", ErrInvalidConfig)
	}
	if c.RateThreshold < 0 || c.RateThreshold > 100 || c.PoorRate < 0 || c.PoorRate > 100 {
		return fmt.Errorf("%w: rate thresholds must be within 0-100", ErrInvalidConfig)
	}
	if c.DropThreshold < 0 || c.DropThreshold > 100 {
		return fmt.Errorf("%w: drop threshold must be within 0-100", ErrInvalidConfig)
	}
	return nil
}

// NewOrchestrator creates an orchestrator for one run.
func NewOrchestrator(config RunConfig, factory DriverFactory, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: nil factory", ErrDriverUnavailable)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	orc := &Orchestrator{
		config:   config,
		factory:  factory,
		policy:   Policy{FailureThreshold: config.FailureThreshold, PoorRate: config.PoorRate},
		detector: Detector{DropThreshold: config.DropThreshold, RateThreshold: config.RateThreshold},
		observer: nopObserver{},
		logger:   logger,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(orc)
	}
	orc.executor = NewExecutor(NewRecorder(orc.classifier, logger), config.SessionTimeout, logger,
		WithLaunchRate(config.LaunchRate),
		WithExecutorObserver(orc.observer))

	return orc, nil
}

// Run ramps concurrency from 1 to the configured maximum, stopping early
// when the policy says so or ctx is cancelled between levels. It only
// returns an error when no driver can be obtained for the first level; every
// other failure is recorded in the returned run.
func (o *Orchestrator) Run(ctx context.Context) (*TestRun, error) {
	run := &TestRun{
		ID:         uuid.NewString(),
		Config:     o.config,
		Levels:     make([]LevelResult, 0, o.config.MaxConcurrency),
		StopReason: StopMaxConcurrency,
		StartTime:  time.Now(),
	}
	logger := o.logger.With(zap.String("run_id", run.ID))
	logger.Info("starting ramp",
		zap.Int("max_concurrency", o.config.MaxConcurrency),
		zap.Int("failure_threshold", o.config.FailureThreshold),
		zap.Duration("session_timeout", o.config.SessionTimeout))

	poorStreak := 0
	for concurrency := 1; concurrency <= o.config.MaxConcurrency; concurrency++ {
		if ctx.Err() != nil {
			run.StopReason = StopCancelled
			break
		}

		level, err := o.runLevel(ctx, concurrency)
		if err != nil {
			if concurrency == 1 && errors.Is(err, ErrDriverFactory) {
				return nil, fmt.Errorf("%w: %v", ErrDriverUnavailable, err)
			}
			logger.Error("level could not be executed", zap.Int("concurrency", concurrency), zap.Error(err))
			level = failedLevel(concurrency, err)
		}

		run.Levels = append(run.Levels, level)
		o.observer.ObserveLevel(level)

		decision := o.policy.Evaluate(level, poorStreak)
		poorStreak = decision.PoorStreak
		if decision.Stop {
			run.StopReason = decision.Reason
			logger.Warn("stopping ramp",
				zap.Int("concurrency", concurrency),
				zap.Float64("success_rate", level.SuccessRate),
				zap.Int("poor_streak", poorStreak),
				zap.String("reason", string(decision.Reason)))
			break
		}

		if concurrency < o.config.MaxConcurrency && o.config.LevelPause > 0 {
			if err := o.sleep(ctx, o.config.LevelPause); err != nil {
				run.StopReason = StopCancelled
				break
			}
		}
	}

	o.finalize(run)

	logger.Info("ramp finished",
		zap.Int("levels", len(run.Levels)),
		zap.String("stop_reason", string(run.StopReason)),
		zap.Bool("critical_point_found", run.CriticalPoint != nil),
		zap.Duration("duration", run.Duration()))

	return run, nil
}

// runLevel executes one level, converting a panic anywhere in the level
// machinery into an error.
func (o *Orchestrator) runLevel(ctx context.Context, concurrency int) (level LevelResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("level %d panicked: %v", concurrency, p)
		}
	}()
	return o.executor.RunLevel(ctx, concurrency, o.factory)
}

func (o *Orchestrator) finalize(run *TestRun) {
	run.CriticalPoint = o.detector.Detect(run.Levels)
	run.EndTime = time.Now()
	o.observer.ObserveRun(run)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
