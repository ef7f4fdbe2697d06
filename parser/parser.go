// Package parser implements the first-line defense against poison
// message bodies consumed from AMQP deliveries.
package parser

import (
	"bytes"
	"encoding/json"

	herrors "github.com/nogards95TG/hermes-mq/errors"
)

// Disposition names how a consumer should handle a poison message.
type Disposition string

const (
	// Reject nacks the delivery without requeue.
	Reject Disposition = "reject"
	// DLQ acks the original delivery. The consumers do not republish the
	// body anywhere: Options has no dead-letter target.
	DLQ Disposition = "dlq"
	// Ignore acks the delivery and drops it silently (besides logging).
	Ignore Disposition = "ignore"
)

// Options configures parser limits and the poison-message disposition.
type Options struct {
	MaxSize     int // 0 disables the size check
	Disposition Disposition
}

// DefaultOptions applies no size limit and rejects poison messages.
func DefaultOptions() Options {
	return Options{Disposition: Reject}
}

// Result is the outcome of Parse.
type Result struct {
	Success     bool
	Data        interface{}
	Err         error
	Disposition Disposition
}

// Parse runs the ordered poison-message checks: size, NUL byte, JSON
// parse, non-null root.
func Parse(body []byte, opts Options) Result {
	if opts.MaxSize > 0 && len(body) > opts.MaxSize {
		return poison(opts, herrors.New(herrors.CodeMessageOversize, "message exceeds maximum size"))
	}
	if bytes.IndexByte(body, 0) >= 0 {
		return poison(opts, herrors.New(herrors.CodeMessageNullByte, "message contains a NUL byte"))
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return poison(opts, herrors.Wrap(err, herrors.CodeMessageBadJSON, "message is not valid JSON"))
	}
	if data == nil {
		return poison(opts, herrors.New(herrors.CodeMessageNullRoot, "decoded message is null"))
	}
	return Result{Success: true, Data: data}
}

func poison(opts Options, err error) Result {
	disp := opts.Disposition
	if disp == "" {
		disp = Reject
	}
	return Result{Success: false, Err: err, Disposition: disp}
}
