package middleware

import (
	"context"
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func newTestContext(payload interface{}) *Context {
	return NewContext(context.Background(), "ADD", payload, map[string]interface{}{}, nil, nil, nil, nil)
}

func TestComposeRunsInOrder(t *testing.T) {
	assert := tdd.New(t)

	var order []string
	mw := func(name string) Middleware {
		return func(ctx *Context, next Next) (interface{}, error) {
			order = append(order, name+":in")
			v, err := next()
			order = append(order, name+":out")
			return v, err
		}
	}

	handler := func(ctx *Context, payload interface{}) (interface{}, error) {
		order = append(order, "handler")
		return "ok", nil
	}

	chain := Compose([]Middleware{mw("a"), mw("b")}, handler)
	v, err := chain(newTestContext(nil))

	assert.NoError(err)
	assert.Equal("ok", v)
	assert.Equal([]string{"a:in", "b:in", "handler", "b:out", "a:out"}, order)
}

func TestComposeShortCircuits(t *testing.T) {
	assert := tdd.New(t)

	handlerCalled := false
	handler := func(ctx *Context, payload interface{}) (interface{}, error) {
		handlerCalled = true
		return "unreached", nil
	}

	shortCircuit := func(ctx *Context, next Next) (interface{}, error) {
		return "short", nil
	}
	neverRuns := func(ctx *Context, next Next) (interface{}, error) {
		return next()
	}

	chain := Compose([]Middleware{shortCircuit, neverRuns}, handler)
	v, err := chain(newTestContext(nil))

	assert.NoError(err)
	assert.Equal("short", v)
	assert.False(handlerCalled)
}

func TestComposeNoNextStopsChain(t *testing.T) {
	assert := tdd.New(t)

	handlerCalled := false
	handler := func(ctx *Context, payload interface{}) (interface{}, error) {
		handlerCalled = true
		return nil, nil
	}

	stopper := func(ctx *Context, next Next) (interface{}, error) {
		return nil, nil
	}

	chain := Compose([]Middleware{stopper}, handler)
	_, err := chain(newTestContext(nil))

	assert.NoError(err)
	assert.False(handlerCalled)
}

func TestNextCalledTwiceFails(t *testing.T) {
	assert := tdd.New(t)

	bad := func(ctx *Context, next Next) (interface{}, error) {
		_, _ = next()
		return next()
	}
	handler := func(ctx *Context, payload interface{}) (interface{}, error) {
		return "ok", nil
	}

	chain := Compose([]Middleware{bad}, handler)
	_, err := chain(newTestContext(nil))
	assert.Error(err)
}

func TestReplyOnlyCommitsOnce(t *testing.T) {
	assert := tdd.New(t)

	var got interface{}
	calls := 0
	ctx := NewContext(context.Background(), "ADD", nil, nil, nil, func(v interface{}, err error) {
		calls++
		got = v
	}, nil, nil)

	ctx.Reply("first", nil)
	ctx.Reply("second", nil)

	assert.Equal(1, calls)
	assert.Equal("first", got)
	assert.True(ctx.Replied())
}
