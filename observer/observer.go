// Package observer defines the passive event sink interfaces external
// collaborators (a debug/telemetry dashboard, a metrics exporter) use to
// watch hermesmq without participating in its control flow.
// Observers must not throw or block; Sink implementations are invoked
// synchronously by the emitting component, in registration order.
package observer

import "time"

// ConnectionState mirrors the connection manager's lifecycle states.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateClosed       ConnectionState = "closed"
)

// ConnectionEvent reports a connection lifecycle transition.
type ConnectionEvent struct {
	State     ConnectionState
	Attempt   int
	Err       error
	Timestamp time.Time
}

// RPCEvent reports a client-side RPC outcome.
type RPCEvent struct {
	Command       string
	CorrelationID string
	Success       bool
	Timeout       bool
	Aborted       bool
	Duration      time.Duration
	Err           error
	Timestamp     time.Time
}

// DeliveryEvent reports a consumer-side delivery outcome (RPC server
// request handling, or subscriber dispatch).
type DeliveryEvent struct {
	Source    string // "rpc-server" or "subscriber"
	Command   string // command name or event name
	Success   bool
	Poison    bool
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

// ServiceEvent reports start/stop of a server-side component.
type ServiceEvent struct {
	Component string
	Started   bool
	Timestamp time.Time
}

// Sink receives passive notifications. Implementations must not block or
// panic; any failure is the observer's own responsibility.
type Sink interface {
	OnConnection(ConnectionEvent)
	OnRPC(RPCEvent)
	OnDelivery(DeliveryEvent)
	OnService(ServiceEvent)
}

// Noop is a Sink that discards every event, used as the default.
type Noop struct{}

func (Noop) OnConnection(ConnectionEvent) {}
func (Noop) OnRPC(RPCEvent)               {}
func (Noop) OnDelivery(DeliveryEvent)     {}
func (Noop) OnService(ServiceEvent)       {}

// Multi fans a single notification out to multiple sinks in order,
// mirroring the fan-out behavior of go.bryk.io/pkg/log's Composite logger.
type Multi []Sink

func (m Multi) OnConnection(ev ConnectionEvent) {
	for _, s := range m {
		s.OnConnection(ev)
	}
}

func (m Multi) OnRPC(ev RPCEvent) {
	for _, s := range m {
		s.OnRPC(ev)
	}
}

func (m Multi) OnDelivery(ev DeliveryEvent) {
	for _, s := range m {
		s.OnDelivery(ev)
	}
}

func (m Multi) OnService(ev ServiceEvent) {
	for _, s := range m {
		s.OnService(ev)
	}
}
