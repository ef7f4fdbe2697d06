// Package config defines the immutable tunables shared by the broker
// connection manager, RPC client/server and publisher/subscriber, built
// through functional options in the style of go.bryk.io/pkg/amqp's
// WithLogger/WithName/WithPrefetch/WithTopology options.
package config

import (
	"crypto/tls"
	"time"

	"github.com/nogards95TG/hermes-mq/breaker"
	"github.com/nogards95TG/hermes-mq/log"
)

// Default tunables used when a caller leaves a field at its zero value.
const (
	DefaultRPCTimeout      = 30 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultChannelAcquire  = 5 * time.Second
	DefaultDedupeTTL       = 5 * time.Minute
	DefaultSweepInterval   = 30 * time.Second

	DefaultReconnectBaseDelay  = 5 * time.Second
	DefaultReconnectMaxDelay   = 60 * time.Second
	DefaultReconnectMaxAttempt = 5

	DefaultPrefetchCount = 10
)

// Reconnect describes the bounded exponential-backoff reconnection policy
// used by the connection manager (§4.1).
type Reconnect struct {
	Enabled     bool
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// ConnectionConfig is immutable once constructed via New.
type ConnectionConfig struct {
	URL           string
	Name          string
	Heartbeat     time.Duration
	Reconnect     Reconnect
	TLS           *tls.Config
	PrefetchCount int
	PrefetchSize  int
	Logger        log.Logger
	Breaker       *breaker.Breaker
}

// Option mutates a ConnectionConfig during construction.
type Option func(*ConnectionConfig) error

// New builds an immutable ConnectionConfig from the given broker URL and
// options.
func New(url string, opts ...Option) (ConnectionConfig, error) {
	cc := ConnectionConfig{
		URL:       url,
		Heartbeat: 10 * time.Second,
		Reconnect: Reconnect{
			Enabled:     true,
			BaseDelay:   DefaultReconnectBaseDelay,
			MaxDelay:    DefaultReconnectMaxDelay,
			MaxAttempts: DefaultReconnectMaxAttempt,
		},
		PrefetchCount: DefaultPrefetchCount,
		Logger:        log.Discard(),
	}
	for _, opt := range opts {
		if err := opt(&cc); err != nil {
			return ConnectionConfig{}, err
		}
	}
	return cc, nil
}

// WithName sets a human-readable identifier sent to the broker as the
// connection_name client property.
func WithName(name string) Option {
	return func(cc *ConnectionConfig) error {
		cc.Name = name
		return nil
	}
}

// WithLogger injects a structured logger. Defaults to log.Discard().
func WithLogger(l log.Logger) Option {
	return func(cc *ConnectionConfig) error {
		if l != nil {
			cc.Logger = l
		}
		return nil
	}
}

// WithHeartbeat overrides the AMQP heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(cc *ConnectionConfig) error {
		cc.Heartbeat = d
		return nil
	}
}

// WithTLS enables AMQPS using the provided TLS configuration.
func WithTLS(conf *tls.Config) Option {
	return func(cc *ConnectionConfig) error {
		cc.TLS = conf
		return nil
	}
}

// WithReconnect overrides the default reconnection policy.
func WithReconnect(r Reconnect) Option {
	return func(cc *ConnectionConfig) error {
		cc.Reconnect = r
		return nil
	}
}

// WithPrefetch sets the channel QoS prefetch count and size.
func WithPrefetch(count, size int) Option {
	return func(cc *ConnectionConfig) error {
		cc.PrefetchCount = count
		cc.PrefetchSize = size
		return nil
	}
}

// WithBreaker wraps every dial attempt in the connection manager's
// establish loop with br, tripping Open after repeated consecutive dial
// failures instead of burning through the full reconnect attempt budget
// on a broker that is known to be down.
func WithBreaker(br *breaker.Breaker) Option {
	return func(cc *ConnectionConfig) error {
		cc.Breaker = br
		return nil
	}
}
