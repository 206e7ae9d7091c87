// Package history keeps finished runs so later runs can be compared with
// earlier ones.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/FairForge/loginramp/internal/loadtest"
	"github.com/FairForge/loginramp/internal/reporting"
)

// ErrNotFound is returned when no earlier run exists.
var ErrNotFound = errors.New("history: no runs recorded")

// Record is the summary of one stored run.
type Record struct {
	RunID                string    `json:"run_id"`
	Endpoint             string    `json:"endpoint"`
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time"`
	StopReason           string    `json:"stop_reason"`
	Levels               int       `json:"levels"`
	TotalSessions        int       `json:"total_sessions"`
	MaxStableConcurrency int       `json:"max_stable_concurrency"`
	CriticalConcurrency  int       `json:"critical_concurrency,omitempty"`
	CriticalKind         string    `json:"critical_kind,omitempty"`
	CriticalAvgMs        float64   `json:"critical_avg_ms,omitempty"`
}

// HasCriticalPoint reports whether the run found a critical point.
func (r Record) HasCriticalPoint() bool {
	return r.CriticalConcurrency > 0
}

// Duration returns the wall-clock length of the run.
func (r Record) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// FromReport summarises a report.
func FromReport(rep *reporting.Report) Record {
	rec := Record{
		RunID:                rep.RunID,
		Endpoint:             rep.Target.Endpoint,
		StartTime:            rep.StartTime,
		EndTime:              rep.EndTime,
		StopReason:           rep.StopReason,
		Levels:               len(rep.Levels),
		TotalSessions:        rep.TotalSessions,
		MaxStableConcurrency: rep.MaxStableConcurrency,
	}
	if cp := rep.CriticalPoint; cp != nil {
		rec.CriticalConcurrency = cp.Concurrency
		rec.CriticalKind = cp.Kind
		rec.CriticalAvgMs = cp.AverageResponseTimeMs
	}
	return rec
}

// FromRun summarises a finalized run.
func FromRun(run *loadtest.TestRun) Record {
	return FromReport(reporting.FromRun(run))
}

// Store persists runs.
type Store interface {
	Save(ctx context.Context, run *loadtest.TestRun) error
	// List returns the newest runs first. An empty endpoint matches all
	// runs; limit <= 0 means no limit.
	List(ctx context.Context, endpoint string, limit int) ([]Record, error)
	// Report returns the full report of one run, or ErrNotFound.
	Report(ctx context.Context, runID string) (*reporting.Report, error)
	Close() error
}

// Latest returns the most recent run recorded for endpoint.
func Latest(ctx context.Context, s Store, endpoint string) (*Record, error) {
	records, err := s.List(ctx, endpoint, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}
