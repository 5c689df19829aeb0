package workflowai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRetryConfigDefaults(t *testing.T) {
	c := RetryConfig{MaxAttempts: 3}.withDefaults()
	d := DefaultRetryConfig()

	assert.Equal(t, 3, c.MaxAttempts)
	assert.Equal(t, d.BaseDelay, c.BaseDelay)
	assert.Equal(t, d.MaxDelay, c.MaxDelay)
	assert.Equal(t, d.BackoffFactor, c.BackoffFactor)
	assert.Equal(t, d.ConnectionDelay, c.ConnectionDelay)
	assert.Equal(t, 1, RetryConfig{}.withDefaults().MaxAttempts)
}

func TestCalculateDelay(t *testing.T) {
	r := newRetrier(RetryConfig{
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2,
	}, zaptest.NewLogger(t))

	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(0))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 400*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, time.Second, r.calculateDelay(10))

	r.config.Jitter = true
	for range 100 {
		d := r.calculateDelay(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestRetrierNext(t *testing.T) {
	ctx := context.Background()
	fast := RetryConfig{MaxAttempts: 3, ConnectionDelay: time.Millisecond, BaseDelay: time.Millisecond}

	t.Run("connection errors until exhausted", func(t *testing.T) {
		r := newRetrier(fast, zaptest.NewLogger(t))
		err := connectionError(errors.New("reset"))

		assert.NoError(t, r.next(ctx, err, false))
		assert.NoError(t, r.next(ctx, err, false))
		assert.Same(t, err, r.next(ctx, err, false))
	})

	t.Run("rate limit without retry after backs off", func(t *testing.T) {
		r := newRetrier(fast, zaptest.NewLogger(t))
		start := time.Now()
		assert.NoError(t, r.next(ctx, &Error{Kind: KindRateLimited}, false))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("retry after is capped", func(t *testing.T) {
		c := fast
		c.MaxDelay = 5 * time.Millisecond
		r := newRetrier(c, zaptest.NewLogger(t))

		start := time.Now()
		assert.NoError(t, r.next(ctx, &Error{Kind: KindRateLimited, RetryAfter: time.Hour}, false))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("not found on reply once", func(t *testing.T) {
		r := newRetrier(RetryConfig{MaxAttempts: 1, ConnectionDelay: time.Millisecond}, zaptest.NewLogger(t))
		err := &Error{Kind: KindNotFound}

		assert.NoError(t, r.next(ctx, err, true))
		assert.Equal(t, 0, r.attempts)
		assert.Same(t, err, r.next(ctx, err, true))
	})

	t.Run("not found outside replies", func(t *testing.T) {
		r := newRetrier(fast, zaptest.NewLogger(t))
		err := &Error{Kind: KindNotFound}
		assert.Same(t, err, r.next(ctx, err, false))
	})

	t.Run("other errors are final", func(t *testing.T) {
		r := newRetrier(fast, zaptest.NewLogger(t))

		server := &Error{Kind: KindServer}
		assert.Same(t, server, r.next(ctx, server, false))

		plain := errors.New("plain")
		assert.Same(t, plain, r.next(ctx, plain, false))
	})

	t.Run("cancelled context", func(t *testing.T) {
		r := newRetrier(RetryConfig{MaxAttempts: 3, ConnectionDelay: time.Hour, MaxDelay: time.Hour}, zaptest.NewLogger(t))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := r.next(cctx, connectionError(errors.New("reset")), false)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
