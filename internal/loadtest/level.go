package loadtest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Executor runs every session of one concurrency level in parallel.
type Executor struct {
	recorder *Recorder
	timeout  time.Duration
	limiter  *rate.Limiter
	observer Observer
	logger   *zap.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLaunchRate paces session starts to perSecond goroutines per second.
// Zero or negative means all sessions start at once.
func WithLaunchRate(perSecond float64) ExecutorOption {
	return func(e *Executor) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithExecutorObserver sets the observer notified of each settled session.
func WithExecutorObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewExecutor creates a level executor with a per-session timeout.
func NewExecutor(recorder *Recorder, timeout time.Duration, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = NewRecorder(nil, logger)
	}
	e := &Executor{
		recorder: recorder,
		timeout:  timeout,
		limiter:  rate.NewLimiter(rate.Inf, 0),
		observer: nopObserver{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunLevel obtains a driver from factory and runs exactly concurrency
// sessions against it, blocking until every one has settled. Only a factory
// failure produces an error; session failures are part of the result.
func (e *Executor) RunLevel(ctx context.Context, concurrency int, factory DriverFactory) (LevelResult, error) {
	if concurrency < 1 {
		return LevelResult{}, fmt.Errorf("%w: concurrency %d", ErrInvalidConfig, concurrency)
	}

	driver, err := factory.NewDriver(ctx, concurrency)
	if err != nil {
		return LevelResult{}, fmt.Errorf("%w: %v", ErrDriverFactory, err)
	}
	if driver == nil {
		return LevelResult{}, fmt.Errorf("%w: factory returned nil driver", ErrDriverFactory)
	}
	if c, ok := driver.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				e.logger.Warn("driver close failed", zap.Int("concurrency", concurrency), zap.Error(err))
			}
		}()
	}

	// Sessions of an in-flight level always run to completion; the
	// per-session timeout still bounds each of them.
	sessionCtx := context.WithoutCancel(ctx)

	results := make([]SessionResult, concurrency)
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < concurrency; i++ {
		if err := e.limiter.Wait(sessionCtx); err != nil {
			e.logger.Warn("launch pacing interrupted", zap.Error(err))
		}
		wg.Add(1)
		go func(sessionID int) {
			defer wg.Done()
			res := e.recorder.Record(sessionCtx, sessionID, driver, e.timeout)
			results[sessionID-1] = res
			e.observer.ObserveSession(concurrency, res)
		}(i + 1)
	}

	wg.Wait()
	wall := time.Since(start)

	level := Aggregate(concurrency, results, wall)
	e.logger.Info("level completed",
		zap.Int("concurrency", concurrency),
		zap.Int("success", level.SuccessCount),
		zap.Int("failure", level.FailureCount),
		zap.Float64("success_rate", level.SuccessRate),
		zap.Duration("avg_response_time", level.AverageResponseTime),
		zap.Duration("wall_time", wall))

	return level, nil
}

// Aggregate computes level statistics from settled session results. It is
// pure: no I/O, no clock.
func Aggregate(concurrency int, results []SessionResult, wall time.Duration) LevelResult {
	level := LevelResult{
		Concurrency:    concurrency,
		Results:        results,
		ErrorHistogram: make(map[ErrorKind]int),
		TotalWallTime:  wall,
	}
	if len(results) == 0 {
		return level
	}

	latencies := make([]time.Duration, 0, len(results))
	var total time.Duration
	for _, r := range results {
		if r.Success {
			level.SuccessCount++
		} else {
			level.FailureCount++
			kind := r.ErrorKind
			if kind == "" || kind == ErrorNone {
				kind = ErrorUnknown
			}
			level.ErrorHistogram[kind]++
		}
		total += r.ResponseTime
		latencies = append(latencies, r.ResponseTime)
	}

	level.SuccessRate = float64(level.SuccessCount) / float64(len(results)) * 100
	level.AverageResponseTime = total / time.Duration(len(results))

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	level.MinResponseTime = latencies[0]
	level.MaxResponseTime = latencies[len(latencies)-1]
	level.P95ResponseTime = percentile(latencies, 95)

	return level
}

// failedLevel records a level that could not be executed as a full failure.
func failedLevel(concurrency int, cause error) LevelResult {
	results := make([]SessionResult, concurrency)
	for i := range results {
		results[i] = SessionResult{
			SessionID:   i + 1,
			ErrorKind:   ErrorUnknown,
			ErrorDetail: cause.Error(),
		}
	}
	level := Aggregate(concurrency, results, 0)
	level.Synthesized = true
	level.LevelError = cause.Error()
	return level
}

// percentile returns the nearest-rank nth percentile of sorted.
func percentile(sorted []time.Duration, n int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (n*len(sorted)+99)/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
