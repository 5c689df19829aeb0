package workflowai

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls how transient failures are retried.
//
// Only connection errors and rate limiting are retried. A connection error waits
// ConnectionDelay; a rate limited response waits for its Retry-After header, or
// for an exponential backoff when the header is missing. Every wait is capped at
// MaxDelay.
//
// Examples:
//
// No retries (the default):
//
//	RetryConfig{MaxAttempts: 1}
//
// Batch processing that tolerates busy periods:
//
//	RetryConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Minute, BackoffFactor: 2, Jitter: true}
type RetryConfig struct {
	// MaxAttempts is the total number of requests made for one call, the first
	// one included (default: 1).
	MaxAttempts int

	// BaseDelay is the first backoff delay when the server gives no Retry-After
	// (default: 1 second).
	BaseDelay time.Duration

	// MaxDelay caps every wait between attempts (default: 60 seconds).
	MaxDelay time.Duration

	// BackoffFactor multiplies the backoff delay after each attempt (default: 2.0).
	BackoffFactor float64

	// Jitter multiplies backoff delays by a random factor between 0.5 and 1.5
	// (default: true).
	Jitter bool

	// ConnectionDelay is the wait after a connection error (default: 10ms).
	ConnectionDelay time.Duration
}

// DefaultRetryConfig returns the retry configuration used when none is given.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     1,
		BaseDelay:       1 * time.Second,
		MaxDelay:        60 * time.Second,
		BackoffFactor:   2.0,
		Jitter:          true,
		ConnectionDelay: 10 * time.Millisecond,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = d.BackoffFactor
	}
	if c.ConnectionDelay <= 0 {
		c.ConnectionDelay = d.ConnectionDelay
	}
	return c
}

// retrier tracks the attempts of one call.
type retrier struct {
	config       RetryConfig
	attempts     int
	replyRetried bool
	logger       *zap.Logger
}

func newRetrier(config RetryConfig, logger *zap.Logger) *retrier {
	return &retrier{config: config.withDefaults(), logger: logger}
}

// next records a failed attempt. It returns nil after waiting when the call
// should be attempted again, and the error to return otherwise.
//
// A 404 on a reply is retried once, outside the attempt budget: the run being
// replied to may not be readable yet.
func (r *retrier) next(ctx context.Context, err error, reply bool) error {
	r.attempts++

	e, ok := AsError(err)
	if !ok {
		return err
	}

	var delay time.Duration
	switch e.Kind {
	case KindNotFound:
		if !reply || r.replyRetried {
			return err
		}
		r.replyRetried = true
		r.attempts--
		delay = r.config.ConnectionDelay
	case KindConnection:
		if r.attempts >= r.config.MaxAttempts {
			return err
		}
		delay = r.config.ConnectionDelay
	case KindRateLimited:
		if r.attempts >= r.config.MaxAttempts {
			return err
		}
		delay = e.RetryAfter
		if delay <= 0 {
			delay = r.calculateDelay(r.attempts - 1)
		}
	default:
		return err
	}

	delay = min(delay, r.config.MaxDelay)
	r.logger.Debug("retrying request",
		zap.Int("attempt", r.attempts),
		zap.String("code", e.Code),
		zap.Duration("delay", delay))

	if waitErr := sleep(ctx, delay); waitErr != nil {
		return waitErr
	}
	return nil
}

// calculateDelay computes the backoff delay for a given attempt.
func (r *retrier) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.BaseDelay) * math.Pow(r.config.BackoffFactor, float64(attempt))

	if r.config.Jitter {
		randomValue, err := secureRandomFloat64()
		if err != nil {
			randomValue = 1.0
		}
		delay *= 0.5 + randomValue
	}

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	return time.Duration(delay)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// secureRandomFloat64 returns a random float64 in [0, 1].
func secureRandomFloat64() (float64, error) {
	var bytes [8]byte
	if _, err := rand.Read(bytes[:]); err != nil {
		return 0, err
	}
	return float64(binary.BigEndian.Uint64(bytes[:])) / float64(^uint64(0)), nil
}
