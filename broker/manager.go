// Package broker owns the single shared AMQP connection, its channels and
// its reconnection behavior. Everything above it (rpc, pubsub) acquires channels through a
// Manager rather than dialing the broker directly.
package broker

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nogards95TG/hermes-mq/config"
	herrors "github.com/nogards95TG/hermes-mq/errors"
	"github.com/nogards95TG/hermes-mq/observer"
)

// State mirrors observer.ConnectionState for local bookkeeping.
type State = observer.ConnectionState

// Manager owns the broker connection lifecycle: dialing, bounded
// exponential-backoff reconnection, channel issuance and lifecycle
// notification.
type Manager struct {
	cfg config.ConnectionConfig

	mu          sync.RWMutex
	state       State
	conn        *amqp.Connection
	establishCh chan struct{} // non-nil while a dial attempt is in flight
	lastErr     error
	observers   []observer.Sink

	closeOnce sync.Once
	done      chan struct{}
}

// NewManager constructs a Manager in the Disconnected state. It does not
// dial until the first GetConnection/GetChannel call.
func NewManager(cfg config.ConnectionConfig) *Manager {
	return &Manager{
		cfg:   cfg,
		state: observer.StateDisconnected,
		done:  make(chan struct{}),
	}
}

// OnLifecycle registers a Sink notified, in registration order, of every
// connection state transition.
func (m *Manager) OnLifecycle(sink observer.Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, sink)
}

// State reports the manager's current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// GetConnection returns a live connection, dialing or reconnecting as
// necessary. At most one dial attempt is ever in flight at a time.
func (m *Manager) GetConnection(ctx context.Context) (*amqp.Connection, error) {
	m.mu.RLock()
	if m.state == observer.StateClosed {
		m.mu.RUnlock()
		return nil, herrors.New(herrors.CodeStateClosing, "connection manager is closed")
	}
	if m.conn != nil && !m.conn.IsClosed() {
		c := m.conn
		m.mu.RUnlock()
		return c, nil
	}
	m.mu.RUnlock()
	return m.establish(ctx)
}

// GetChannel returns a fresh Channel wrapping a new AMQP channel on the
// shared connection, in the requested Mode.
func (m *Manager) GetChannel(ctx context.Context, mode Mode) (*Channel, error) {
	conn, err := m.GetConnection(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := conn.Channel()
	if err != nil {
		return nil, herrors.Wrap(err, herrors.CodeChannelCreationFailed, "open channel")
	}
	if mode == Confirm {
		if err := raw.Confirm(false); err != nil {
			_ = raw.Close()
			return nil, herrors.Wrap(err, herrors.CodeChannelCreationFailed, "enable confirms")
		}
	}
	if err := raw.Qos(m.cfg.PrefetchCount, m.cfg.PrefetchSize, false); err != nil {
		_ = raw.Close()
		return nil, herrors.Wrap(err, herrors.CodeChannelCreationFailed, "set qos")
	}
	return newChannel(raw, mode), nil
}

// Close terminates the connection and transitions the manager to Closed.
// Idempotent; after Close, GetConnection/GetChannel always fail.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		conn := m.conn
		m.conn = nil
		m.state = observer.StateClosed
		m.mu.Unlock()
		close(m.done)
		m.emit(observer.ConnectionEvent{State: observer.StateClosed, Timestamp: time.Now()})
		if conn != nil && !conn.IsClosed() {
			err = conn.Close()
		}
	})
	return err
}

// establish runs (or waits on) a single in-flight dial/reconnect
// attempt, applying the bounded exponential backoff policy: delay(n) =
// min(base*2^(n-1), max), n = 1..MaxAttempts.
func (m *Manager) establish(ctx context.Context) (*amqp.Connection, error) {
	m.mu.Lock()
	if ch := m.establishCh; ch != nil {
		m.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return m.GetConnection(ctx)
	}
	ch := make(chan struct{})
	m.establishCh = ch
	wasReconnect := m.state == observer.StateConnected || m.state == observer.StateReconnecting
	if wasReconnect {
		m.state = observer.StateReconnecting
	} else {
		m.state = observer.StateConnecting
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.establishCh = nil
		m.mu.Unlock()
		close(ch)
	}()

	policy := m.cfg.Reconnect
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		m.emit(observer.ConnectionEvent{State: m.State(), Attempt: n, Timestamp: time.Now()})

		conn, err := m.dial()
		if err == nil {
			m.mu.Lock()
			m.conn = conn
			m.state = observer.StateConnected
			m.lastErr = nil
			m.mu.Unlock()
			m.emit(observer.ConnectionEvent{State: observer.StateConnected, Attempt: n, Timestamp: time.Now()})
			go m.watch(conn)
			return conn, nil
		}

		lastErr = err
		m.cfg.Logger.WithField("attempt", n).Warning("amqp dial attempt failed: ", err.Error())

		if !policy.Enabled || n == maxAttempts {
			break
		}
		delay := backoffDelay(policy.BaseDelay, policy.MaxDelay, n)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			n = maxAttempts
		case <-m.done:
			lastErr = herrors.New(herrors.CodeStateClosing, "connection manager closed during dial")
			n = maxAttempts
		}
	}

	m.mu.Lock()
	m.state = observer.StateClosed
	m.lastErr = lastErr
	m.mu.Unlock()
	wrapped := herrors.Wrap(lastErr, herrors.CodeConnectionFailed, "exhausted reconnect attempts")
	m.emit(observer.ConnectionEvent{State: observer.StateClosed, Err: wrapped, Timestamp: time.Now()})
	return nil, wrapped
}

// dial performs a single connection attempt, routed through the
// configured circuit breaker if one is set so a broker that is known to
// be down short-circuits future attempts instead of dialing again.
func (m *Manager) dial() (*amqp.Connection, error) {
	do := func() (*amqp.Connection, error) {
		return amqp.DialConfig(m.cfg.URL, amqp.Config{
			Heartbeat:       m.cfg.Heartbeat,
			TLSClientConfig: m.cfg.TLS,
			Properties:      amqp.Table{"connection_name": m.cfg.Name},
		})
	}
	if m.cfg.Breaker == nil {
		return do()
	}
	res, err := m.cfg.Breaker.Execute(func() (interface{}, error) {
		return do()
	})
	if err != nil {
		return nil, err
	}
	return res.(*amqp.Connection), nil
}

// watch observes the connection's own close notification and triggers
// reconnection when it goes away other than by our own Close().
func (m *Manager) watch(conn *amqp.Connection) {
	closeErr := make(chan *amqp.Error, 1)
	conn.NotifyClose(closeErr)
	select {
	case err := <-closeErr:
		m.mu.RLock()
		closed := m.state == observer.StateClosed
		m.mu.RUnlock()
		if closed {
			return
		}
		m.emit(observer.ConnectionEvent{State: observer.StateReconnecting, Err: err, Timestamp: time.Now()})
		go func() {
			_, _ = m.establish(context.Background())
		}()
	case <-m.done:
	}
}

func (m *Manager) emit(ev observer.ConnectionEvent) {
	m.mu.RLock()
	sinks := append([]observer.Sink(nil), m.observers...)
	m.mu.RUnlock()
	for _, s := range sinks {
		s.OnConnection(ev)
	}
}

func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

