// Package retry implements a bounded, classified retry policy built on
// cenkalti/backoff/v4's bounded exponential backoff primitive.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nogards95TG/hermes-mq/log"
)

// Predicate classifies whether a failed attempt should be retried. It
// receives the error and the 1-indexed attempt number that just failed.
type Predicate func(err error, attempt int) bool

// Options configures a retry Policy.
type Options struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
	ShouldRetry       Predicate
	Logger            log.Logger
}

// Policy runs a function with bounded, classified retries.
type Policy struct {
	opts Options
}

// New constructs a Policy. Defaults: MaxAttempts 3, InitialDelay 1s,
// BackoffMultiplier 2, MaxDelay 30s, ShouldRetry always-true.
func New(opts Options) *Policy {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = time.Second
	}
	if opts.BackoffMultiplier <= 0 {
		opts.BackoffMultiplier = 2
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.ShouldRetry == nil {
		opts.ShouldRetry = func(error, int) bool { return true }
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	return &Policy{opts: opts}
}

// Execute runs fn with up to MaxAttempts tries, sleeping
// min(InitialDelay*BackoffMultiplier^(attempt-1), MaxDelay) between
// attempts classified as retryable by ShouldRetry. The final failure is
// returned unwrapped.
func (p *Policy) Execute(fn func() error) error {
	attempt := 0
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.opts.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          p.opts.BackoffMultiplier,
		MaxInterval:         p.opts.MaxDelay,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	op := func() error {
		attempt++
		err := fn()
		if err == nil {
			if attempt > 1 {
				p.opts.Logger.WithField("attempts", attempt).Info("operation succeeded after retry")
			}
			return nil
		}
		if attempt >= p.opts.MaxAttempts || !p.opts.ShouldRetry(err, attempt) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(op, backoff.WithMaxRetries(b, uint64(p.opts.MaxAttempts-1)))
}
