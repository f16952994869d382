package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleRateLimiterWait(t *testing.T) {
	r := NewSimpleRateLimiter(30*time.Millisecond, 30*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, r.Wait(ctx))
	assert.Less(t, time.Since(start), 20*time.Millisecond, "first wait is immediate")

	require.NoError(t, r.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestSimpleRateLimiterCancelled(t *testing.T) {
	r := NewSimpleRateLimiter(time.Minute, time.Minute)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.Canceled)
}

func TestSimpleRateLimiterJitter(t *testing.T) {
	r := NewSimpleRateLimiter(time.Second, 3*time.Second)
	r.rand = func(n int64) int64 { return n / 2 }
	assert.Equal(t, 2*time.Second, r.calculateDelay())

	r.SetDelay(5*time.Second, time.Second)
	minDelay, maxDelay := r.Delays()
	assert.Equal(t, 5*time.Second, minDelay)
	assert.Equal(t, 5*time.Second, maxDelay)
}

func TestAdaptiveRateLimiter(t *testing.T) {
	t.Run("backs off after repeated errors", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)
		a.RecordError()
		a.RecordError()
		minDelay, _ := a.Delays()
		assert.Equal(t, 2*time.Second, minDelay)

		a.RecordError()
		minDelay, maxDelay := a.Delays()
		assert.Equal(t, 3*time.Second, minDelay)
		assert.Equal(t, 6*time.Second, maxDelay)
	})

	t.Run("eases back but never below the floor", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(2*time.Second, 4*time.Second)
		for i := 0; i < 3; i++ {
			a.RecordError()
		}
		for i := 0; i < 60; i++ {
			a.RecordSuccess()
		}
		minDelay, maxDelay := a.Delays()
		assert.Equal(t, 2*time.Second, minDelay)
		assert.Equal(t, 4*time.Second, maxDelay)
	})

	t.Run("zero delays stay zero", func(t *testing.T) {
		a := NewAdaptiveRateLimiter(0, 0)
		for i := 0; i < 6; i++ {
			a.RecordError()
		}
		minDelay, maxDelay := a.Delays()
		assert.Zero(t, minDelay)
		assert.Zero(t, maxDelay)
	})
}
