// Package envelope defines the wire-level JSON shapes exchanged over AMQP
// (RequestEnvelope, ResponseEnvelope, EventEnvelope) along with the
// Serializer and ValidateAdapter boundary interfaces consumed by the rest
// of hermesmq.
package envelope

import (
	"strings"

	"github.com/nogards95TG/hermes-mq/metadata"
)

// RequestEnvelope is published to a command queue by the RPC client.
type RequestEnvelope struct {
	ID        string       `json:"id"`
	Command   string       `json:"command"`
	Timestamp int64        `json:"timestamp"`
	Data      interface{}  `json:"data,omitempty"`
	Metadata  metadata.Map `json:"metadata,omitempty"`
}

// ResponseError is the failure branch of a ResponseEnvelope.
type ResponseError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ResponseEnvelope is published back to the request's replyTo queue by the
// RPC server.
type ResponseEnvelope struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      interface{}    `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// EventEnvelope is published to an exchange by the Publisher and consumed
// by the Subscriber.
type EventEnvelope struct {
	EventName string       `json:"eventName"`
	Data      interface{}  `json:"data,omitempty"`
	Timestamp int64        `json:"timestamp"`
	Metadata  metadata.Map `json:"metadata,omitempty"`
}

// NormalizeCommand uppercases and trims a command symbol before it is
// used as a routing/dispatch key.
func NormalizeCommand(command string) string {
	return strings.ToUpper(strings.TrimSpace(command))
}

// Serializer encodes and decodes an application value to/from bytes. The
// default implementation is JSON.
type Serializer interface {
	Encode(value interface{}) ([]byte, error)
	Decode(data []byte, out interface{}) error
}

// ValidateAdapter is a single static interface standing in for the
// duck-typed Zod/Yup-shaped schema probing used in the source. Concrete adapters implement Type/Validate rather than
// relying on runtime shape detection.
type ValidateAdapter interface {
	// Type identifies the adapter/schema implementation, for diagnostics.
	Type() string
	// Validate reports whether value conforms to the schema; on failure it
	// returns a list of human-readable validation errors.
	Validate(value interface{}) (ok bool, errs []string)
}

// NoopValidator accepts every value; it is the default ValidateAdapter.
type NoopValidator struct{}

func (NoopValidator) Type() string { return "noop" }

func (NoopValidator) Validate(interface{}) (bool, []string) { return true, nil }
