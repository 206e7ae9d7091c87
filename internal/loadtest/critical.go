package loadtest

// Default detector thresholds, in percentage points / percent.
const (
	DefaultDropThreshold = 20.0
	DefaultRateThreshold = 80.0
)

// Detector finds the critical point in a completed sequence of levels.
type Detector struct {
	// DropThreshold is the single-step success rate drop, in percentage
	// points, that marks a capacity boundary.
	DropThreshold float64
	// RateThreshold is the success rate a level needs to count as good.
	RateThreshold float64
}

// DefaultDetector returns a detector with the stock thresholds.
func DefaultDetector() Detector {
	return Detector{DropThreshold: DefaultDropThreshold, RateThreshold: DefaultRateThreshold}
}

// Detect scans levels once and returns the critical point, or nil when no
// degradation was observed or no level was ever good. The last good level
// is reported, not the failing one.
func (d Detector) Detect(levels []LevelResult) *CriticalPoint {
	degraded := false
	lastGood := -1

	for i := range levels {
		if levels[i].SuccessRate >= d.RateThreshold {
			lastGood = i
		} else {
			degraded = true
		}
		if i == 0 {
			continue
		}

		prev, curr := levels[i-1], levels[i]
		if prev.SuccessRate-curr.SuccessRate > d.DropThreshold {
			return pointFrom(prev, CriticalSignificantDrop)
		}
		if curr.SuccessRate < d.RateThreshold && prev.SuccessRate >= d.RateThreshold {
			return pointFrom(prev, CriticalBelowThreshold)
		}
	}

	if degraded && lastGood >= 0 {
		return pointFrom(levels[lastGood], CriticalLastGood)
	}
	return nil
}

func pointFrom(l LevelResult, kind CriticalKind) *CriticalPoint {
	return &CriticalPoint{
		Concurrency:         l.Concurrency,
		SuccessRate:         l.SuccessRate,
		AverageResponseTime: l.AverageResponseTime,
		Kind:                kind,
	}
}
