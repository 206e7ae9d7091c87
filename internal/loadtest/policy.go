package loadtest

// DefaultPoorRate is the success rate below which a level counts as poor.
const DefaultPoorRate = 50.0

// Policy decides after each level whether the ramp should continue.
type Policy struct {
	// FailureThreshold is the number of consecutive poor levels that ends
	// the run.
	FailureThreshold int
	// PoorRate is the success rate (percent) below which a level is poor.
	PoorRate float64
}

// DefaultPolicy returns the stock stopping policy.
func DefaultPolicy() Policy {
	return Policy{FailureThreshold: 3, PoorRate: DefaultPoorRate}
}

// Decision is the policy's verdict for one completed level.
type Decision struct {
	Stop       bool
	PoorStreak int
	Reason     StopReason
}

// Evaluate inspects the just-completed level given the current count of
// consecutive poor levels and returns the updated count.
func (p Policy) Evaluate(level LevelResult, poorStreak int) Decision {
	threshold := p.FailureThreshold
	if threshold < 1 {
		threshold = 1
	}

	if level.SuccessRate < p.PoorRate {
		poorStreak++
	} else {
		poorStreak = 0
	}

	switch {
	case level.SuccessRate == 0:
		return Decision{Stop: true, PoorStreak: poorStreak, Reason: StopZeroSuccess}
	case poorStreak >= threshold:
		return Decision{Stop: true, PoorStreak: poorStreak, Reason: StopFailureStreak}
	default:
		return Decision{PoorStreak: poorStreak}
	}
}

// ShouldStop reports whether the run should end after the last of levels,
// given the poor streak before that level.
func ShouldStop(levels []LevelResult, poorStreak, failureThreshold int) bool {
	if len(levels) == 0 {
		return false
	}
	p := Policy{FailureThreshold: failureThreshold, PoorRate: DefaultPoorRate}
	return p.Evaluate(levels[len(levels)-1], poorStreak).Stop
}
