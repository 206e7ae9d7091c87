package loadtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Record(t *testing.T) {
	r := NewRecorder(nil, nil)

	t.Run("success", func(t *testing.T) {
		driver := DriverFunc(func(ctx context.Context, id int) (Outcome, error) {
			time.Sleep(10 * time.Millisecond)
			return Outcome{Success: true}, nil
		})

		res := r.Record(context.Background(), 7, driver, time.Second)
		assert.Equal(t, 7, res.SessionID)
		assert.True(t, res.Success)
		assert.Equal(t, ErrorNone, res.ErrorKind)
		assert.Empty(t, res.ErrorDetail)
		assert.GreaterOrEqual(t, res.ResponseTime, 10*time.Millisecond)
	})

	t.Run("negative outcome is classified from hint", func(t *testing.T) {
		driver := DriverFunc(func(ctx context.Context, id int) (Outcome, error) {
			return Outcome{Success: false, Hint: "Invalid credentials"}, nil
		})

		res := r.Record(context.Background(), 1, driver, time.Second)
		assert.False(t, res.Success)
		assert.Equal(t, ErrorRejected, res.ErrorKind)
		assert.Equal(t, "Invalid credentials", res.ErrorDetail)
	})

	t.Run("driver error without rule is unknown", func(t *testing.T) {
		driver := DriverFunc(func(ctx context.Context, id int) (Outcome, error) {
			return Outcome{}, errors.New("weird")
		})

		res := r.Record(context.Background(), 1, driver, time.Second)
		assert.False(t, res.Success)
		assert.Equal(t, ErrorUnknown, res.ErrorKind)
		assert.Equal(t, "weird", res.ErrorDetail)
	})

	t.Run("silent failure still gets a detail", func(t *testing.T) {
		driver := DriverFunc(func(ctx context.Context, id int) (Outcome, error) {
			return Outcome{}, nil
		})

		res := r.Record(context.Background(), 1, driver, time.Second)
		assert.False(t, res.Success)
		assert.Equal(t, ErrorUnknown, res.ErrorKind)
		assert.NotEmpty(t, res.ErrorDetail)
	})

	t.Run("driver ignoring context is cut off at the timeout", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		driver := DriverFunc(func(ctx context.Context, id int) (Outcome, error) {
			<-release
			return Outcome{Success: true}, nil
		})

		start := time.Now()
		res := r.Record(context.Background(), 3, driver, 50*time.Millisecond)
		elapsed := time.Since(start)

		assert.False(t, res.Success)
		assert.Equal(t, ErrorTimeout, res.ErrorKind)
		assert.GreaterOrEqual(t, res.ResponseTime, 50*time.Millisecond)
		assert.Less(t, elapsed, time.Second)
	})

	t.Run("driver honouring context times out", func(t *testing.T) {
		driver := DriverFunc(func(ctx context.Context, id int) (Outcome, error) {
			<-ctx.Done()
			return Outcome{}, ctx.Err()
		})

		res := r.Record(context.Background(), 1, driver, 20*time.Millisecond)
		assert.Equal(t, ErrorTimeout, res.ErrorKind)
	})

	t.Run("panicking driver is recovered", func(t *testing.T) {
		driver := DriverFunc(func(ctx context.Context, id int) (Outcome, error) {
			panic("kaboom")
		})

		var res SessionResult
		require.NotPanics(t, func() {
			res = r.Record(context.Background(), 2, driver, time.Second)
		})
		assert.False(t, res.Success)
		assert.Equal(t, ErrorUnknown, res.ErrorKind)
		assert.Contains(t, res.ErrorDetail, "kaboom")
	})
}

func TestRecorder_DriverCalledOnce(t *testing.T) {
	calls := 0
	driver := DriverFunc(func(ctx context.Context, id int) (Outcome, error) {
		calls++
		return Outcome{}, errors.New("connection refused")
	})

	res := NewRecorder(nil, nil).Record(context.Background(), 1, driver, time.Second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ErrorNavigationFailure, res.ErrorKind)
}
