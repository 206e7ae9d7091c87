// Package preflight checks that the target answers before a ramp starts.
package preflight

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// ErrUnhealthy is returned when the target answers with a non-2xx status.
var ErrUnhealthy = errors.New("preflight: target unhealthy")

// Config configures the checker.
type Config struct {
	RetryMax           int
	RetryWaitMin       time.Duration
	RetryWaitMax       time.Duration
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// ApplyDefaults fills in default values
func (c *Config) ApplyDefaults() {
	if c.RetryMax == 0 {
		c.RetryMax = 3
	}
	if c.RetryWaitMin == 0 {
		c.RetryWaitMin = 500 * time.Millisecond
	}
	if c.RetryWaitMax == 0 {
		c.RetryWaitMax = 5 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// Result describes a successful check.
type Result struct {
	URL        string
	StatusCode int
	Latency    time.Duration
}

// Checker probes a URL with bounded retries.
type Checker struct {
	client *retryablehttp.Client
	logger *zap.Logger
}

// NewChecker creates a checker.
func NewChecker(cfg Config, logger *zap.Logger) *Checker {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = leveledLogger{logger.Sugar()}
	// Hand the last response back instead of a generic "giving up" error so
	// the status code can be reported.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if cfg.InsecureSkipVerify {
		if tr, ok := client.HTTPClient.Transport.(*http.Transport); ok {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in for staging targets
		}
	}

	return &Checker{client: client, logger: logger}
}

// Check GETs url, retrying connection errors and 5xx answers, and requires
// a 2xx status in the end.
func (c *Checker) Check(ctx context.Context, url string) (*Result, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("preflight: build request: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("preflight: %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	res := &Result{URL: url, StatusCode: resp.StatusCode, Latency: time.Since(start)}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return res, fmt.Errorf("%w: %s returned status %d", ErrUnhealthy, url, resp.StatusCode)
	}

	c.logger.Info("preflight passed",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", res.Latency))
	return res, nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
