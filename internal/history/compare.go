package history

import (
	"fmt"
	"strings"
	"time"
)

// Status indicates whether a run held up against the previous one.
type Status string

const (
	StatusPass       Status = "pass"
	StatusRegression Status = "regression"
	StatusImproved   Status = "improved"
	StatusUnknown    Status = "unknown"
)

// Compared metrics
const (
	MetricMaxStable     = "max_stable_concurrency"
	MetricCritical      = "critical_concurrency"
	MetricCriticalAvgMs = "critical_avg_ms"
)

// DefaultThresholds are the allowed deviations in percent.
var DefaultThresholds = map[string]float64{
	MetricMaxStable:     10.0,
	MetricCritical:      10.0,
	MetricCriticalAvgMs: 20.0,
}

// Difference captures the delta between the previous and current values.
type Difference struct {
	Metric    string
	Previous  float64
	Current   float64
	DeltaPct  float64
	Status    Status
	Threshold float64
}

// Comparison is the outcome of comparing two runs.
type Comparison struct {
	Previous      Record
	Current       Record
	Differences   []Difference
	OverallStatus Status
	Regressions   []string
	Improvements  []string
}

// Compare checks current against previous. Thresholds missing from the map
// fall back to DefaultThresholds.
func Compare(previous, current Record, thresholds map[string]float64) *Comparison {
	threshold := func(metric string) float64 {
		if v, ok := thresholds[metric]; ok {
			return v
		}
		return DefaultThresholds[metric]
	}

	c := &Comparison{Previous: previous, Current: current, OverallStatus: StatusPass}

	c.add(compareHigher(MetricMaxStable,
		float64(previous.MaxStableConcurrency), float64(current.MaxStableConcurrency), threshold(MetricMaxStable)))

	switch {
	case previous.HasCriticalPoint() && current.HasCriticalPoint():
		c.add(compareHigher(MetricCritical,
			float64(previous.CriticalConcurrency), float64(current.CriticalConcurrency), threshold(MetricCritical)))
		c.add(compareLower(MetricCriticalAvgMs,
			previous.CriticalAvgMs, current.CriticalAvgMs, threshold(MetricCriticalAvgMs)))
	case previous.HasCriticalPoint() != current.HasCriticalPoint():
		c.add(Difference{
			Metric:    MetricCritical,
			Previous:  float64(previous.CriticalConcurrency),
			Current:   float64(current.CriticalConcurrency),
			Status:    criticalAppeared(previous, current),
			Threshold: threshold(MetricCritical),
		})
	}

	return c
}

// criticalAppeared rates a critical point present in only one of the runs.
// A run without one either never degraded or never had a good level; a
// max stable concurrency of 0 marks the latter.
func criticalAppeared(previous, current Record) Status {
	if current.HasCriticalPoint() {
		if previous.MaxStableConcurrency == 0 {
			return StatusImproved
		}
		return StatusRegression
	}
	if current.MaxStableConcurrency == 0 {
		return StatusRegression
	}
	return StatusImproved
}

func (c *Comparison) add(d Difference) {
	c.Differences = append(c.Differences, d)
	switch d.Status {
	case StatusRegression:
		c.Regressions = append(c.Regressions, d.Metric)
		c.OverallStatus = StatusRegression
	case StatusImproved:
		c.Improvements = append(c.Improvements, d.Metric)
		if c.OverallStatus == StatusPass {
			c.OverallStatus = StatusImproved
		}
	}
}

func deltaPct(previous, current float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// compareHigher compares metrics where higher is better.
func compareHigher(metric string, previous, current, threshold float64) Difference {
	d := Difference{Metric: metric, Previous: previous, Current: current, Threshold: threshold}
	if previous == 0 {
		d.Status = StatusUnknown
		if current > 0 {
			d.Status = StatusImproved
		}
		return d
	}
	d.DeltaPct = deltaPct(previous, current)
	switch {
	case d.DeltaPct < -threshold:
		d.Status = StatusRegression
	case d.DeltaPct > threshold:
		d.Status = StatusImproved
	default:
		d.Status = StatusPass
	}
	return d
}

// compareLower compares metrics where lower is better.
func compareLower(metric string, previous, current, threshold float64) Difference {
	d := Difference{Metric: metric, Previous: previous, Current: current, Threshold: threshold}
	if previous == 0 {
		d.Status = StatusUnknown
		return d
	}
	d.DeltaPct = deltaPct(previous, current)
	switch {
	case d.DeltaPct > threshold:
		d.Status = StatusRegression
	case d.DeltaPct < -threshold:
		d.Status = StatusImproved
	default:
		d.Status = StatusPass
	}
	return d
}

// GenerateReport creates a human-readable comparison report.
func (c *Comparison) GenerateReport() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Compared with run %s (%s)\n", c.Previous.RunID, c.Previous.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "Overall status: %s\n", c.OverallStatus)

	for _, d := range c.Differences {
		icon := " "
		switch d.Status {
		case StatusRegression:
			icon = "-"
		case StatusImproved:
			icon = "+"
		}
		fmt.Fprintf(&b, "%s %s: %.2f -> %.2f (%.1f%%) [threshold: %.1f%%]\n",
			icon, d.Metric, d.Previous, d.Current, d.DeltaPct, d.Threshold)
	}

	if len(c.Regressions) > 0 {
		fmt.Fprintf(&b, "Regressions: %s\n", strings.Join(c.Regressions, ", "))
	}
	if len(c.Improvements) > 0 {
		fmt.Fprintf(&b, "Improvements: %s\n", strings.Join(c.Improvements, ", "))
	}
	return b.String()
}
