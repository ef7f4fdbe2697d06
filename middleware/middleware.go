// Package middleware implements the onion-model composition used by the
// RPC server and the Subscriber to run a per-command chain of middleware
// around a terminal handler.
package middleware

import (
	"context"
	"sync"

	"github.com/nogards95TG/hermes-mq/log"
	"github.com/nogards95TG/hermes-mq/metadata"
)

// Handler is the terminal callable a middleware chain wraps. It receives
// the (possibly middleware-rewritten) payload and the request Context and
// returns the value to reply with, or an error.
type Handler func(ctx *Context, payload interface{}) (interface{}, error)

// Next advances the chain to the following middleware, or to the terminal
// Handler when called from the last middleware.
type Next func() (interface{}, error)

// Middleware wraps the rest of the chain. Returning a value without
// calling next short-circuits: later stages and the terminal handler do
// not run and that value becomes the reply.
type Middleware func(ctx *Context, next Next) (interface{}, error)

// Context is the per-request mutable carrier threaded through a
// middleware chain. It is not safe for
// concurrent use by multiple goroutines at once.
type Context struct {
	Ctx     context.Context
	Command string
	Payload interface{}

	Properties map[string]interface{}
	// Meta is a per-request scratch space, safe for concurrent use by
	// middleware that hands work off to other goroutines before calling
	// next.
	Meta metadata.MD

	Logger log.Logger

	Attempt int

	replied  bool
	repliedMu sync.Mutex

	replyFn func(value interface{}, err error)
	ackFn   func()
	nackFn  func(requeue bool)
}

// NewContext builds a Context from a command, decoded payload,
// raw properties and bound reply/ack/nack callbacks.
func NewContext(goctx context.Context, command string, payload interface{}, properties map[string]interface{}, logger log.Logger, replyFn func(interface{}, error), ackFn func(), nackFn func(bool)) *Context {
	if logger == nil {
		logger = log.Discard()
	}
	return &Context{
		Ctx:        goctx,
		Command:    command,
		Payload:    payload,
		Properties: properties,
		Meta:       metadata.New(),
		Logger:     logger,
		replyFn:    replyFn,
		ackFn:      ackFn,
		nackFn:     nackFn,
	}
}

// Reply commits value as the single reply for this context. Additional
// calls are ignored and logged as a warning.
func (c *Context) Reply(value interface{}, err error) {
	c.repliedMu.Lock()
	if c.replied {
		c.repliedMu.Unlock()
		c.Logger.Warning("middleware context already replied, ignoring additional reply")
		return
	}
	c.replied = true
	c.repliedMu.Unlock()
	if c.replyFn != nil {
		c.replyFn(value, err)
	}
}

// Replied reports whether a reply has already been committed.
func (c *Context) Replied() bool {
	c.repliedMu.Lock()
	defer c.repliedMu.Unlock()
	return c.replied
}

// Ack acknowledges the underlying delivery, if the caller bound one.
func (c *Context) Ack() {
	if c.ackFn != nil {
		c.ackFn()
	}
}

// Nack rejects the underlying delivery, if the caller bound one.
func (c *Context) Nack(requeue bool) {
	if c.nackFn != nil {
		c.nackFn(requeue)
	}
}

// Chain is a composed, cacheable callable produced by Compose.
type Chain func(ctx *Context) (interface{}, error)

// Compose builds a single Chain executing the onion model over stack in
// order, terminating in handler. The returned Chain may be cached and
// invoked repeatedly; each invocation tracks its own "next called twice"
// state so concurrent invocations do not interfere with each other.
func Compose(stack []Middleware, handler Handler) Chain {
	return func(ctx *Context) (interface{}, error) {
		return run(stack, 0, ctx, handler)
	}
}

func run(stack []Middleware, idx int, ctx *Context, handler Handler) (interface{}, error) {
	if idx >= len(stack) {
		return handler(ctx, ctx.Payload)
	}

	called := false
	mw := stack[idx]
	next := func() (interface{}, error) {
		if called {
			return nil, errNextCalledTwice
		}
		called = true
		return run(stack, idx+1, ctx, handler)
	}
	return mw(ctx, next)
}
