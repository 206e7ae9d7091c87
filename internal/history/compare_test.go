package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func record(stable, critical int, avgMs float64) Record {
	r := Record{
		RunID:                "run",
		StartTime:            time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC),
		MaxStableConcurrency: stable,
	}
	if critical > 0 {
		r.CriticalConcurrency = critical
		r.CriticalKind = "below_threshold"
		r.CriticalAvgMs = avgMs
	}
	return r
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name         string
		previous     Record
		current      Record
		status       Status
		regressions  []string
		improvements []string
	}{
		{
			name:     "within tolerance",
			previous: record(10, 10, 300),
			current:  record(10, 10, 320),
			status:   StatusPass,
		},
		{
			name:        "capacity dropped",
			previous:    record(10, 10, 300),
			current:     record(6, 6, 300),
			status:      StatusRegression,
			regressions: []string{MetricMaxStable, MetricCritical},
		},
		{
			name:        "slower at the critical point",
			previous:    record(8, 8, 200),
			current:     record(8, 8, 400),
			status:      StatusRegression,
			regressions: []string{MetricCriticalAvgMs},
		},
		{
			name:         "capacity grew",
			previous:     record(5, 5, 300),
			current:      record(8, 8, 290),
			status:       StatusImproved,
			improvements: []string{MetricMaxStable, MetricCritical},
		},
		{
			name:        "new degradation",
			previous:    record(10, 0, 0),
			current:     record(10, 10, 300),
			status:      StatusRegression,
			regressions: []string{MetricCritical},
		},
		{
			name:         "degradation gone",
			previous:     record(4, 4, 300),
			current:      record(10, 0, 0),
			status:       StatusImproved,
			improvements: []string{MetricMaxStable, MetricCritical},
		},
		{
			name:         "recovered from a failed run",
			previous:     record(0, 0, 0),
			current:      record(5, 5, 300),
			status:       StatusImproved,
			improvements: []string{MetricMaxStable, MetricCritical},
		},
		{
			name:        "never good anymore",
			previous:    record(4, 4, 300),
			current:     record(0, 0, 0),
			status:      StatusRegression,
			regressions: []string{MetricMaxStable, MetricCritical},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Compare(tt.previous, tt.current, nil)
			assert.Equal(t, tt.status, c.OverallStatus)
			assert.Equal(t, tt.regressions, c.Regressions)
			assert.Equal(t, tt.improvements, c.Improvements)
		})
	}
}

func TestCompare_CustomThreshold(t *testing.T) {
	c := Compare(record(10, 0, 0), record(8, 0, 0), map[string]float64{MetricMaxStable: 25})
	assert.Equal(t, StatusPass, c.OverallStatus)
	assert.InDelta(t, -20.0, c.Differences[0].DeltaPct, 0.001)
	assert.Equal(t, 25.0, c.Differences[0].Threshold)
}

func TestCompare_NoPreviousCapacity(t *testing.T) {
	c := Compare(record(0, 0, 0), record(0, 0, 0), nil)
	assert.Equal(t, StatusUnknown, c.Differences[0].Status)
	assert.Equal(t, StatusPass, c.OverallStatus)
}

func TestComparison_GenerateReport(t *testing.T) {
	c := Compare(record(10, 10, 300), record(6, 6, 300), nil)
	out := c.GenerateReport()

	assert.Contains(t, out, "Compared with run run (2026-05-02T08:00:00Z)")
	assert.Contains(t, out, "Overall status: regression")
	assert.Contains(t, out, "- max_stable_concurrency: 10.00 -> 6.00 (-40.0%)")
	assert.Contains(t, out, "Regressions: max_stable_concurrency, critical_concurrency")
}
