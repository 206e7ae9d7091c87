package loadtest

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDriverUnavailable is returned by Orchestrator.Run when no session
	// driver can be obtained before the first level.
	ErrDriverUnavailable = errors.New("loadtest: session driver unavailable")

	// ErrDriverFactory wraps factory failures returned by Executor.RunLevel.
	ErrDriverFactory = errors.New("loadtest: driver factory failed")

	// ErrInvalidConfig is returned for unusable run configuration.
	ErrInvalidConfig = errors.New("loadtest: invalid config")
)

// Outcome is what a driver reports for one session attempt.
type Outcome struct {
	Success bool
	// Hint carries status text used to classify a failed attempt.
	Hint string
}

// Driver performs one simulated login attempt.
type Driver interface {
	PerformSession(ctx context.Context, sessionID int) (Outcome, error)
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(ctx context.Context, sessionID int) (Outcome, error)

// PerformSession calls f.
func (f DriverFunc) PerformSession(ctx context.Context, sessionID int) (Outcome, error) {
	return f(ctx, sessionID)
}

// DriverFactory hands out the driver used for one concurrency level.
// Drivers that implement io.Closer are closed once their level completes.
type DriverFactory interface {
	NewDriver(ctx context.Context, concurrency int) (Driver, error)
}

// FactoryFunc adapts a function to the DriverFactory interface.
type FactoryFunc func(ctx context.Context, concurrency int) (Driver, error)

// NewDriver calls f.
func (f FactoryFunc) NewDriver(ctx context.Context, concurrency int) (Driver, error) {
	return f(ctx, concurrency)
}

// StaticFactory returns the same driver for every level.
func StaticFactory(d Driver) DriverFactory {
	return FactoryFunc(func(context.Context, int) (Driver, error) {
		if d == nil {
			return nil, errors.New("nil driver")
		}
		return d, nil
	})
}

// SessionError lets a driver classify its own failure.
type SessionError struct {
	Kind ErrorKind
	Err  error
}

// NewSessionError wraps err with an explicit error kind.
func NewSessionError(kind ErrorKind, err error) *SessionError {
	return &SessionError{Kind: kind, Err: err}
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Observer receives progress notifications from a run. Implementations must
// be safe for concurrent use; ObserveSession is called from session
// goroutines.
type Observer interface {
	ObserveSession(concurrency int, result SessionResult)
	ObserveLevel(level LevelResult)
	ObserveRun(run *TestRun)
}

type nopObserver struct{}

func (nopObserver) ObserveSession(int, SessionResult) {}
func (nopObserver) ObserveLevel(LevelResult)          {}
func (nopObserver) ObserveRun(*TestRun)               {}
