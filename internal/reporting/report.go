// internal/reporting/report.go
package reporting

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/FairForge/loginramp/internal/loadtest"
)

// SchemaVersion identifies the JSON layout written by this package.
const SchemaVersion = "report.v1"

// Export formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatText = "text"
)

// ErrUnknownFormat is returned for an unsupported export format.
var ErrUnknownFormat = errors.New("report: unknown format")

// Extension returns the file extension used for format.
func Extension(format string) string {
	if format == FormatText {
		return "txt"
	}
	return format
}

// ContentType returns the MIME type used when uploading format.
func ContentType(format string) string {
	switch format {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Report is the serialisable form of a finalized run.
type Report struct {
	SchemaVersion        string         `json:"schema_version"`
	RunID                string         `json:"run_id"`
	Target               TargetInfo     `json:"target"`
	Config               ConfigInfo     `json:"config"`
	StartTime            time.Time      `json:"start_time"`
	EndTime              time.Time      `json:"end_time"`
	DurationMs           float64        `json:"duration_ms"`
	StopReason           string         `json:"stop_reason"`
	TotalSessions        int            `json:"total_sessions"`
	MaxStableConcurrency int            `json:"max_stable_concurrency"`
	CriticalPoint        *CriticalPoint `json:"critical_point"`
	Levels               []Level        `json:"levels"`
}

type TargetInfo struct {
	Endpoint string `json:"endpoint"`
	Account  string `json:"account,omitempty"`
}

type ConfigInfo struct {
	MaxConcurrency   int     `json:"max_concurrency"`
	FailureThreshold int     `json:"failure_threshold"`
	SessionTimeoutMs float64 `json:"session_timeout_ms"`
	LevelPauseMs     float64 `json:"level_pause_ms"`
	LaunchRate       float64 `json:"launch_rate,omitempty"`
	DropThreshold    float64 `json:"drop_threshold"`
	RateThreshold    float64 `json:"rate_threshold"`
	PoorRate         float64 `json:"poor_rate"`
}

type CriticalPoint struct {
	Concurrency           int     `json:"concurrency"`
	SuccessRate           float64 `json:"success_rate"`
	AverageResponseTimeMs float64 `json:"average_response_time_ms"`
	Kind                  string  `json:"kind"`
}

type Level struct {
	Concurrency           int            `json:"concurrency"`
	SuccessCount          int            `json:"success_count"`
	FailureCount          int            `json:"failure_count"`
	SuccessRate           float64        `json:"success_rate"`
	AverageResponseTimeMs float64        `json:"average_response_time_ms"`
	MinResponseTimeMs     float64        `json:"min_response_time_ms"`
	MaxResponseTimeMs     float64        `json:"max_response_time_ms"`
	P95ResponseTimeMs     float64        `json:"p95_response_time_ms"`
	TotalWallTimeMs       float64        `json:"total_wall_time_ms"`
	ErrorHistogram        map[string]int `json:"error_histogram"`
	Synthesized           bool           `json:"synthesized,omitempty"`
	LevelError            string         `json:"level_error,omitempty"`
	Sessions              []Session      `json:"sessions"`
}

type Session struct {
	SessionID      int     `json:"session_id"`
	Success        bool    `json:"success"`
	ResponseTimeMs float64 `json:"response_time_ms"`
	ErrorKind      string  `json:"error_kind"`
	ErrorDetail    string  `json:"error_detail,omitempty"`
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FromRun converts a finalized run into its report form.
func FromRun(run *loadtest.TestRun) *Report {
	r := &Report{
		SchemaVersion: SchemaVersion,
		RunID:         run.ID,
		Target: TargetInfo{
			Endpoint: run.Config.Target.Endpoint,
			Account:  run.Config.Target.Account,
		},
		Config: ConfigInfo{
			MaxConcurrency:   run.Config.MaxConcurrency,
			FailureThreshold: run.Config.FailureThreshold,
			SessionTimeoutMs: ms(run.Config.SessionTimeout),
			LevelPauseMs:     ms(run.Config.LevelPause),
			LaunchRate:       run.Config.LaunchRate,
			DropThreshold:    run.Config.DropThreshold,
			RateThreshold:    run.Config.RateThreshold,
			PoorRate:         run.Config.PoorRate,
		},
		StartTime:            run.StartTime,
		EndTime:              run.EndTime,
		DurationMs:           ms(run.Duration()),
		StopReason:           string(run.StopReason),
		TotalSessions:        run.TotalSessions(),
		MaxStableConcurrency: run.MaxStableConcurrency(run.Config.RateThreshold),
		Levels:               make([]Level, 0, len(run.Levels)),
	}

	if cp := run.CriticalPoint; cp != nil {
		r.CriticalPoint = &CriticalPoint{
			Concurrency:           cp.Concurrency,
			SuccessRate:           cp.SuccessRate,
			AverageResponseTimeMs: ms(cp.AverageResponseTime),
			Kind:                  string(cp.Kind),
		}
	}

	for _, l := range run.Levels {
		level := Level{
			Concurrency:           l.Concurrency,
			SuccessCount:          l.SuccessCount,
			FailureCount:          l.FailureCount,
			SuccessRate:           l.SuccessRate,
			AverageResponseTimeMs: ms(l.AverageResponseTime),
			MinResponseTimeMs:     ms(l.MinResponseTime),
			MaxResponseTimeMs:     ms(l.MaxResponseTime),
			P95ResponseTimeMs:     ms(l.P95ResponseTime),
			TotalWallTimeMs:       ms(l.TotalWallTime),
			ErrorHistogram:        make(map[string]int, len(l.ErrorHistogram)),
			Synthesized:           l.Synthesized,
			LevelError:            l.LevelError,
			Sessions:              make([]Session, 0, len(l.Results)),
		}
		for kind, n := range l.ErrorHistogram {
			level.ErrorHistogram[string(kind)] = n
		}
		for _, s := range l.Results {
			level.Sessions = append(level.Sessions, Session{
				SessionID:      s.SessionID,
				Success:        s.Success,
				ResponseTimeMs: ms(s.ResponseTime),
				ErrorKind:      string(s.ErrorKind),
				ErrorDetail:    s.ErrorDetail,
			})
		}
		r.Levels = append(r.Levels, level)
	}

	return r
}

// Decode parses a JSON report and checks its schema version.
func Decode(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("report: decode: %w", err)
	}
	if r.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("report: unsupported schema version %q", r.SchemaVersion)
	}
	return &r, nil
}

// Generator renders runs in the supported formats.
type Generator struct {
	// Color enables ANSI colors in the text format.
	Color bool
}

// NewGenerator creates a generator.
func NewGenerator(color bool) *Generator {
	return &Generator{Color: color}
}

// Export renders run in format.
func (g *Generator) Export(run *loadtest.TestRun, format string) ([]byte, error) {
	if run == nil {
		return nil, errors.New("report: nil run")
	}
	switch format {
	case FormatJSON:
		return json.MarshalIndent(FromRun(run), "", "  ")
	case FormatCSV:
		return g.exportCSV(run)
	case FormatText:
		var buf bytes.Buffer
		if err := g.WriteText(&buf, run); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

var csvHeader = []string{
	"concurrency", "success_count", "failure_count", "success_rate",
	"avg_ms", "min_ms", "max_ms", "p95_ms", "wall_ms",
	"timeout", "rejected", "navigation_failure", "unknown",
	"synthesized", "critical",
}

// exportCSV writes one row per level.
func (g *Generator) exportCSV(run *loadtest.TestRun) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	for _, l := range run.Levels {
		critical := ""
		if run.CriticalPoint != nil && run.CriticalPoint.Concurrency == l.Concurrency {
			critical = string(run.CriticalPoint.Kind)
		}
		row := []string{
			strconv.Itoa(l.Concurrency),
			strconv.Itoa(l.SuccessCount),
			strconv.Itoa(l.FailureCount),
			f(l.SuccessRate),
			f(ms(l.AverageResponseTime)),
			f(ms(l.MinResponseTime)),
			f(ms(l.MaxResponseTime)),
			f(ms(l.P95ResponseTime)),
			f(ms(l.TotalWallTime)),
		}
		for _, kind := range loadtest.ErrorKinds() {
			row = append(row, strconv.Itoa(l.ErrorHistogram[kind]))
		}
		row = append(row, strconv.FormatBool(l.Synthesized), critical)
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}
