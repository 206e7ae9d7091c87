package loadtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Recorder wraps a single driver invocation with timing and error
// classification. Record never fails: every outcome becomes a SessionResult.
type Recorder struct {
	classifier *Classifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewRecorder creates a recorder. A nil classifier uses DefaultClassifier.
func NewRecorder(classifier *Classifier, logger *zap.Logger) *Recorder {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		classifier: classifier,
		logger:     logger,
		now:        time.Now,
	}
}

type driverReturn struct {
	outcome Outcome
	err     error
}

// Record invokes the driver exactly once for sessionID, bounded by timeout.
// The driver runs in its own goroutine so a driver that ignores ctx still
// cannot hold the caller past the deadline.
func (r *Recorder) Record(ctx context.Context, sessionID int, driver Driver, timeout time.Duration) SessionResult {
	result := SessionResult{SessionID: sessionID, ErrorKind: ErrorNone}

	sessionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan driverReturn, 1)
	start := r.now()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- driverReturn{err: fmt.Errorf("driver panic: %v", p)}
			}
		}()
		outcome, err := driver.PerformSession(sessionCtx, sessionID)
		done <- driverReturn{outcome: outcome, err: err}
	}()

	var ret driverReturn
	select {
	case ret = <-done:
	case <-sessionCtx.Done():
		ret = driverReturn{err: sessionCtx.Err()}
	}
	result.ResponseTime = r.now().Sub(start)

	if ret.err == nil && ret.outcome.Success {
		result.Success = true
		return result
	}

	// A driver that swallowed its context error still timed out if the
	// deadline passed before it answered.
	if ret.err == nil && sessionCtx.Err() == context.DeadlineExceeded {
		ret.err = sessionCtx.Err()
	}

	result.ErrorKind = r.classifier.Classify(ret.outcome.Hint, ret.err)
	result.ErrorDetail = detail(ret.outcome.Hint, ret.err)
	if result.ErrorDetail == "" {
		result.ErrorDetail = "driver reported failure"
	}

	r.logger.Debug("session failed",
		zap.Int("session_id", sessionID),
		zap.String("kind", string(result.ErrorKind)),
		zap.String("detail", result.ErrorDetail),
		zap.Duration("response_time", result.ResponseTime))

	return result
}
