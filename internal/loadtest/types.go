package loadtest

import (
	"time"
)

// ErrorKind classifies why a single session attempt failed.
type ErrorKind string

const (
	ErrorNone              ErrorKind = "none"
	ErrorTimeout           ErrorKind = "timeout"
	ErrorRejected          ErrorKind = "rejected"
	ErrorNavigationFailure ErrorKind = "navigation_failure"
	ErrorUnknown           ErrorKind = "unknown"
)

// ErrorKinds lists the failure kinds in report order.
func ErrorKinds() []ErrorKind {
	return []ErrorKind{ErrorTimeout, ErrorRejected, ErrorNavigationFailure, ErrorUnknown}
}

// SessionResult is the outcome of one simulated login attempt.
type SessionResult struct {
	SessionID    int
	Success      bool
	ResponseTime time.Duration
	ErrorKind    ErrorKind
	ErrorDetail  string
}

// LevelResult aggregates every session run at one concurrency level.
type LevelResult struct {
	Concurrency         int
	Results             []SessionResult
	SuccessCount        int
	FailureCount        int
	SuccessRate         float64 // percent, 0-100
	AverageResponseTime time.Duration
	MinResponseTime     time.Duration
	MaxResponseTime     time.Duration
	P95ResponseTime     time.Duration
	ErrorHistogram      map[ErrorKind]int
	TotalWallTime       time.Duration

	// Synthesized is set when the level could not be executed at all and
	// was recorded as a full failure instead.
	Synthesized bool
	LevelError  string
}

// CriticalKind names the rule that identified a critical point.
type CriticalKind string

const (
	CriticalSignificantDrop CriticalKind = "significant_drop"
	CriticalBelowThreshold  CriticalKind = "below_threshold"
	CriticalLastGood        CriticalKind = "last_good"
)

// CriticalPoint is the last concurrency level before behaviour degraded.
type CriticalPoint struct {
	Concurrency         int
	SuccessRate         float64
	AverageResponseTime time.Duration
	Kind                CriticalKind
}

// StopReason records why the ramp ended.
type StopReason string

const (
	StopMaxConcurrency StopReason = "max_concurrency"
	StopZeroSuccess    StopReason = "zero_success"
	StopFailureStreak  StopReason = "failure_streak"
	StopCancelled      StopReason = "cancelled"
)

// Target describes the system under test. The core never interprets it.
type Target struct {
	Endpoint string
	Account  string
}

// RunConfig is the configuration snapshot stored with a run.
type RunConfig struct {
	Target           Target
	MaxConcurrency   int
	FailureThreshold int
	SessionTimeout   time.Duration
	LevelPause       time.Duration
	LaunchRate       float64 // sessions started per second, 0 = unlimited
	DropThreshold    float64
	RateThreshold    float64
	PoorRate         float64
}

// DefaultRunConfig returns the stock ramp settings.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxConcurrency:   10,
		FailureThreshold: 3,
		SessionTimeout:   12 * time.Second,
		LevelPause:       2 * time.Second,
		DropThreshold:    DefaultDropThreshold,
		RateThreshold:    DefaultRateThreshold,
		PoorRate:         DefaultPoorRate,
	}
}

// TestRun is the complete record of one execution of the harness.
type TestRun struct {
	ID            string
	Config        RunConfig
	Levels        []LevelResult
	CriticalPoint *CriticalPoint
	StopReason    StopReason
	StartTime     time.Time
	EndTime       time.Time
}

// Duration returns the wall-clock length of the run.
func (r *TestRun) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// MaxStableConcurrency returns the highest level whose success rate reached
// threshold, or 0 when none did.
func (r *TestRun) MaxStableConcurrency(threshold float64) int {
	best := 0
	for _, l := range r.Levels {
		if l.SuccessRate >= threshold && l.Concurrency > best {
			best = l.Concurrency
		}
	}
	return best
}

// TotalSessions returns the number of session attempts across all levels.
func (r *TestRun) TotalSessions() int {
	total := 0
	for _, l := range r.Levels {
		total += l.Concurrency
	}
	return total
}
