// Package errors provides the error taxonomy used across hermesmq: a
// stack-carrying Error type with a stable CATEGORY:SUBCATEGORY code, a
// human message and an opaque details payload that round-trips through
// envelope.ResponseEnvelope.
package errors

import (
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"time"
)

// Code is a stable, machine-matchable error identifier of the form
// "CATEGORY:SUBCATEGORY".
type Code string

// Error categories, forming the CATEGORY half of every Code.
const (
	CategoryConnection        = "CONNECTION"
	CategoryChannel           = "CHANNEL"
	CategoryValidation        = "VALIDATION"
	CategoryTimeout           = "TIMEOUT"
	CategoryState             = "STATE"
	CategoryMessageValidation = "MESSAGE_VALIDATION"
	CategoryRetryExhausted    = "RETRY_EXHAUSTED"
	CategoryPublish           = "PUBLISH"
)

// Well-known codes used throughout the core.
const (
	CodeConnectionFailed  Code = "CONNECTION:FAILED"
	CodeConnectionClosed  Code = "CONNECTION:CLOSED"
	CodeConnectionAuth    Code = "CONNECTION:AUTH"
	CodeConnectionTimeout Code = "CONNECTION:TIMEOUT"
	CodeConnectionTLS     Code = "CONNECTION:TLS"

	CodeChannelCreationFailed Code = "CHANNEL:CREATION_FAILED"
	CodeChannelPoolDraining   Code = "CHANNEL:POOL_DRAINING"
	CodeChannelClosed         Code = "CHANNEL:CLOSED"
	CodeChannelFlowControl    Code = "CHANNEL:FLOW_CONTROL"
	CodeChannelTimeout        Code = "CHANNEL:TIMEOUT"

	CodeValidationMissingCommand  Code = "VALIDATION:MISSING_COMMAND"
	CodeValidationMissingHandler  Code = "VALIDATION:MISSING_HANDLER"
	CodeValidationMissingExchange Code = "VALIDATION:MISSING_EXCHANGE"
	CodeValidationMissingPattern  Code = "VALIDATION:MISSING_PATTERN"
	CodeValidationMissingEvent    Code = "VALIDATION:MISSING_EVENT_NAME"
	CodeValidationConfig          Code = "VALIDATION:INVALID_CONFIGURATION"
	CodeValidationNoHandler       Code = "VALIDATION:NO_HANDLER"

	CodeTimeoutRPCReply Code = "TIMEOUT:RPC_REPLY"

	CodeStateInvalid Code = "STATE:INVALID_FOR_LIFECYCLE"
	CodeStateClosing Code = "STATE:CLOSING"
	CodeStateAborted Code = "STATE:ABORTED"

	CodeMessageOversize  Code = "MESSAGE_VALIDATION:OVERSIZE"
	CodeMessageNullByte  Code = "MESSAGE_VALIDATION:NULL_BYTE"
	CodeMessageBadJSON   Code = "MESSAGE_VALIDATION:BAD_JSON"
	CodeMessageNullRoot  Code = "MESSAGE_VALIDATION:NULL_ROOT"

	CodeRetryExhausted Code = "RETRY_EXHAUSTED:MAX_ATTEMPTS"

	CodePublishReturned Code = "PUBLISH:RETURNED"
	CodePublishNacked   Code = "PUBLISH:NACKED"
	CodePublishBufferFull Code = "PUBLISH:BUFFER_FULL"
	CodePublishExpired    Code = "PUBLISH:BUFFER_EXPIRED"
)

// Error is a stack-carrying error with a stable code, a message and an
// opaque details payload.
type Error struct {
	ts      int64
	code    Code
	err     error
	prev    error
	prefix  string
	frames  []StackFrame
	details interface{}
}

// New returns a root error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		ts:     time.Now().UnixMilli(),
		code:   code,
		err:    stdErrors.New(message),
		frames: getStack(1),
	}
}

// Newf is New with printf-style formatting.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{
		ts:     time.Now().UnixMilli(),
		code:   code,
		err:    fmt.Errorf(format, args...),
		frames: getStack(1),
	}
}

// Wrap returns a new error that chains `err` as its cause, preserving its
// stack trace when available.
func Wrap(err error, code Code, prefix string) *Error {
	if err == nil {
		return nil
	}
	frames := getStack(1)
	var se *Error
	if stdErrors.As(err, &se) {
		if se.frames != nil {
			frames = se.frames
		}
	}
	return &Error{
		ts:     time.Now().UnixMilli(),
		code:   code,
		err:    err,
		prev:   err,
		prefix: prefix,
		frames: frames,
	}
}

// WithDetails attaches an opaque, JSON-marshalable details payload and
// returns the same error for chaining.
func (e *Error) WithDetails(details interface{}) *Error {
	e.details = details
	return e
}

// Code returns the error's stable category:subcategory code.
func (e *Error) Code() Code {
	return e.code
}

// Details returns the opaque details payload, if any.
func (e *Error) Details() interface{} {
	return e.details
}

// Stamp returns the UNIX millisecond timestamp the error was created at.
func (e *Error) Stamp() int64 {
	return e.ts
}

// StackTrace returns the captured call stack.
func (e *Error) StackTrace() []StackFrame {
	return e.frames
}

// Error implements the standard error interface.
func (e *Error) Error() string {
	msg := e.err.Error()
	if e.prefix != "" {
		return fmt.Sprintf("%s: %s", e.prefix, msg)
	}
	return msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.prev
}

// Cause walks the error chain to the root cause.
func (e *Error) Cause() error {
	if e.prev == nil {
		return e
	}
	var ce *Error
	if stdErrors.As(e.prev, &ce) {
		return ce.Cause()
	}
	return e.prev
}

// NewPlain wraps the standard library's errors.New for convenience so
// callers do not need to import both packages for plain errors.
func NewPlain(message string) error { return stdErrors.New(message) }

// Is reports whether err matches target, per standard errors.Is semantics.
func Is(err, target error) bool { return stdErrors.Is(err, target) }

// As finds the first error in err's chain matching target's type.
func As(err error, target interface{}) bool { return stdErrors.As(err, target) }

// CodeOf extracts the Code from err if it is (or wraps) an *Error, the zero
// Code otherwise.
func CodeOf(err error) Code {
	var e *Error
	if stdErrors.As(err, &e) {
		return e.code
	}
	return ""
}

// report is the JSON shape used to round-trip an Error's code, message and
// details across process boundaries via a ResponseEnvelope.
type report struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// MarshalJSON encodes the error as {code, message, details}.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(report{Code: e.code, Message: e.Error(), Details: e.details})
}

// FromReport reconstructs an *Error from its round-tripped JSON shape. Used
// by the RPC client when decoding a failure ResponseEnvelope.
func FromReport(code Code, message string, details interface{}) *Error {
	return &Error{
		ts:      time.Now().UnixMilli(),
		code:    code,
		err:     stdErrors.New(message),
		details: details,
		frames:  getStack(1),
	}
}
