// Package reconnect implements a consumer-cancel reconnection manager: a
// single collapsing pending timer that retries a callback with bounded
// exponential backoff until it succeeds or gives up after maxAttempts.
package reconnect

import (
	"sync"
	"time"

	"github.com/nogards95TG/hermes-mq/log"
)

// Callback re-establishes a consumer. A nil return means success.
type Callback func() error

// Options configures a Manager.
type Options struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	Logger      log.Logger
	OnGiveUp    func(err error)
}

// Manager schedules reconnection attempts for a single consumer,
// collapsing concurrent schedule calls into the one pending timer.
type Manager struct {
	opts Options

	mu      sync.Mutex
	timer   *time.Timer
	attempt int
	aborted bool
}

// New constructs a Manager. Defaults: BaseDelay 5s, MaxDelay 60s,
// MaxAttempts 5 (matching the connection manager's defaults).
func New(opts Options) *Manager {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 5 * time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	return &Manager{opts: opts}
}

// ScheduleReconnect arms a single pending timer that invokes cb after the
// backoff delay for the current attempt. A call while a timer is already
// pending is a no-op (concurrent schedule calls collapse).
func (m *Manager) ScheduleReconnect(cb Callback) {
	m.mu.Lock()
	if m.aborted || m.timer != nil {
		m.mu.Unlock()
		return
	}
	m.attempt++
	n := m.attempt
	delay := backoffDelay(m.opts.BaseDelay, m.opts.MaxDelay, n)
	m.timer = time.AfterFunc(delay, func() { m.fire(cb) })
	m.mu.Unlock()
}

func (m *Manager) fire(cb Callback) {
	m.mu.Lock()
	m.timer = nil
	aborted := m.aborted
	n := m.attempt
	max := m.opts.MaxAttempts
	m.mu.Unlock()
	if aborted {
		return
	}

	err := cb()
	if err == nil {
		m.mu.Lock()
		m.attempt = 0
		m.mu.Unlock()
		return
	}

	m.opts.Logger.WithField("attempt", n).Warning("consumer reconnect attempt failed: ", err.Error())
	if n >= max {
		if m.opts.OnGiveUp != nil {
			m.opts.OnGiveUp(err)
		}
		return
	}
	m.ScheduleReconnect(cb)
}

// Cancel aborts any scheduled attempt and prevents further scheduling.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
