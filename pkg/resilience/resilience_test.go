package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetrySucceedsEventually(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", fastRetry(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), "op", fastRetry(2), func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	bad := errors.New("bad config")
	calls := 0
	err := Retry(context.Background(), "op", fastRetry(5), func(context.Context) error {
		calls++
		return &Permanent{Err: bad}
	})
	assert.Equal(t, bad, err)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "op", fastRetry(5), func(context.Context) error { return errors.New("x") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffGrowsAndIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2, JitterFraction: 0.1}
	assert.InDelta(t, float64(10*time.Millisecond), float64(cfg.Backoff(1)), float64(time.Millisecond))
	assert.InDelta(t, float64(20*time.Millisecond), float64(cfg.Backoff(2)), float64(2*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, cfg.Backoff(10))
}

func TestRetryPassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	err := Retry(ctx, "op", fastRetry(1), func(got context.Context) error {
		assert.Equal(t, "v", got.Value(key{}))
		return nil
	})
	require.NoError(t, err)
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("redis", CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Second})
	cb.now = func() time.Time { return now }
	fail := func() error { return errors.New("refused") }

	assert.Error(t, cb.Execute(fail))
	assert.Equal(t, StateClosed, cb.State())
	assert.Error(t, cb.Execute(fail))
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())

	assert.Error(t, cb.Execute(fail))
	assert.Error(t, cb.Execute(fail))
	now = now.Add(2 * time.Second)
	assert.Error(t, cb.Execute(fail))
	assert.Equal(t, StateOpen, cb.State())
}
