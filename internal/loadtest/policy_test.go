package loadtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Evaluate(t *testing.T) {
	p := DefaultPolicy()

	t.Run("three consecutive poor levels stop the ramp", func(t *testing.T) {
		levels := levelsWithRates(100, 100, 30, 20, 10, 5)
		streak := 0
		processed := 0
		var last Decision
		for _, l := range levels {
			processed++
			last = p.Evaluate(l, streak)
			streak = last.PoorStreak
			if last.Stop {
				break
			}
		}
		assert.Equal(t, 5, processed)
		assert.True(t, last.Stop)
		assert.Equal(t, StopFailureStreak, last.Reason)
		assert.Equal(t, 3, last.PoorStreak)
	})

	t.Run("zero success stops immediately", func(t *testing.T) {
		d := p.Evaluate(LevelResult{Concurrency: 1, SuccessRate: 0}, 0)
		assert.True(t, d.Stop)
		assert.Equal(t, StopZeroSuccess, d.Reason)
	})

	t.Run("good level resets the streak", func(t *testing.T) {
		d := p.Evaluate(LevelResult{SuccessRate: 40}, 0)
		assert.False(t, d.Stop)
		assert.Equal(t, 1, d.PoorStreak)

		d = p.Evaluate(LevelResult{SuccessRate: 50}, d.PoorStreak)
		assert.False(t, d.Stop)
		assert.Equal(t, 0, d.PoorStreak)
	})

	t.Run("threshold below one behaves as one", func(t *testing.T) {
		d := Policy{FailureThreshold: 0, PoorRate: 50}.Evaluate(LevelResult{SuccessRate: 10}, 0)
		assert.True(t, d.Stop)
		assert.Equal(t, StopFailureStreak, d.Reason)
	})
}

func TestShouldStop(t *testing.T) {
	assert.False(t, ShouldStop(nil, 0, 3))
	assert.False(t, ShouldStop(levelsWithRates(100, 40), 0, 3))
	assert.True(t, ShouldStop(levelsWithRates(100, 40), 2, 3))
	assert.True(t, ShouldStop(levelsWithRates(100, 0), 0, 3))
}
