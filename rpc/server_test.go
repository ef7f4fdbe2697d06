package rpc

import (
	"context"
	"testing"

	tdd "github.com/stretchr/testify/assert"

	"github.com/nogards95TG/hermes-mq/middleware"
)

func testMiddlewareContext() *middleware.Context {
	return middleware.NewContext(context.Background(), "ADD", nil, nil, nil, nil, nil, nil)
}

func TestRegisterHandlerRequiresNonEmptyCommand(t *testing.T) {
	assert := tdd.New(t)
	s := NewServer(nil, ServerOptions{Queue: "svc.commands"})

	h := middleware.Handler(func(ctx *middleware.Context, payload interface{}) (interface{}, error) {
		return nil, nil
	})
	err := s.RegisterHandler("", h)
	assert.Error(err)
}

func TestRegisterHandlerRequiresHandlerLast(t *testing.T) {
	assert := tdd.New(t)
	s := NewServer(nil, ServerOptions{Queue: "svc.commands"})
	err := s.RegisterHandler("ADD", "not-a-handler")
	assert.Error(err)
}

func TestRegisterHandlerReplacesDuplicate(t *testing.T) {
	assert := tdd.New(t)
	s := NewServer(nil, ServerOptions{Queue: "svc.commands"})

	h1 := middleware.Handler(func(ctx *middleware.Context, payload interface{}) (interface{}, error) {
		return "first", nil
	})
	h2 := middleware.Handler(func(ctx *middleware.Context, payload interface{}) (interface{}, error) {
		return "second", nil
	})

	assert.NoError(s.RegisterHandler("ADD", h1))
	assert.NoError(s.RegisterHandler("add", h2))

	s.mu.RLock()
	reg, ok := s.handlers["ADD"]
	s.mu.RUnlock()
	assert.True(ok)

	v, err := reg.chain(testMiddlewareContext())
	assert.NoError(err)
	assert.Equal("second", v)
}

func TestUseRecomposesExistingHandlers(t *testing.T) {
	assert := tdd.New(t)
	s := NewServer(nil, ServerOptions{Queue: "svc.commands"})

	var order []string
	h := middleware.Handler(func(ctx *middleware.Context, payload interface{}) (interface{}, error) {
		order = append(order, "handler")
		return nil, nil
	})
	assert.NoError(s.RegisterHandler("ADD", h))

	s.Use(func(ctx *middleware.Context, next middleware.Next) (interface{}, error) {
		order = append(order, "global")
		return next()
	})

	s.mu.RLock()
	reg := s.handlers["ADD"]
	s.mu.RUnlock()
	_, err := reg.chain(testMiddlewareContext())
	assert.NoError(err)
	assert.Equal([]string{"global", "handler"}, order)
}
