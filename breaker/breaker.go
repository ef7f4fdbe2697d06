// Package breaker wraps sony/gobreaker with explicit Closed/Open/HalfOpen
// state reporting and state-change notification.
package breaker

import (
	"time"

	"github.com/sony/gobreaker"

	herrors "github.com/nogards95TG/hermes-mq/errors"
)

// State mirrors gobreaker's three states under hermesmq's own names.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half-open"
)

// StateChangeEvent reports a circuit breaker transition.
type StateChangeEvent struct {
	Old          State
	New          State
	FailureCount uint32
	SuccessCount uint32
}

// Options configures a Breaker.
type Options struct {
	Name                string
	FailureThreshold    uint32
	ResetTimeout        time.Duration
	HalfOpenMaxAttempts uint32
	OnStateChange       func(StateChangeEvent)
	OnReset             func()
}

// Breaker executes calls through a three-state circuit breaker.
type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	onReset func()
}

// New constructs a Breaker. Defaults: FailureThreshold 5, ResetTimeout
// 60s, HalfOpenMaxAttempts 1.
func New(opts Options) *Breaker {
	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	resetTimeout := opts.ResetTimeout
	if resetTimeout == 0 {
		resetTimeout = 60 * time.Second
	}
	maxRequests := opts.HalfOpenMaxAttempts
	if maxRequests == 0 {
		maxRequests = 1
	}

	settings := gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: maxRequests,
		Timeout:     resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if opts.OnStateChange != nil {
		cb := opts.OnStateChange
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			cb(StateChangeEvent{Old: fromGobreaker(from), New: fromGobreaker(to)})
		}
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings), onReset: opts.OnReset}
}

// Execute runs fn through the breaker. When the breaker is Open, fn is
// not invoked and a *HalfOpen limit*-equivalent error is returned
// immediately. When HalfOpen rejects an over-limit trial call, the same
// error shape is returned.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, herrors.Wrap(err, herrors.CodeChannelFlowControl, "circuit breaker rejected call")
	}
	return result, err
}

// State reports the breaker's current state.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

// Reset is a no-op marker hook: gobreaker self-manages its internal
// counters, so this only invokes the configured OnReset callback for
// observers that want an explicit signal.
func (b *Breaker) Reset() {
	if b.onReset != nil {
		b.onReset()
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return Closed
	case gobreaker.StateHalfOpen:
		return HalfOpen
	default:
		return Open
	}
}
