package rpc

import (
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestClientSendRejectsEmptyCommand(t *testing.T) {
	assert := tdd.New(t)
	c := NewClient(nil, ClientOptions{CommandQueue: "svc.commands"})
	assert.False(c.IsReady())

	_, err := c.Send(nil, "", nil, SendOptions{}) //nolint:staticcheck // nil ctx unused before validation
	assert.Error(err)
}

func TestClientUseAppliesMiddlewareInOrder(t *testing.T) {
	assert := tdd.New(t)
	c := NewClient(nil, ClientOptions{CommandQueue: "svc.commands"})

	var seen []string
	c.Use(func(command string, payload interface{}) (string, interface{}) {
		seen = append(seen, "m1:"+command)
		return command, payload
	})
	c.Use(func(command string, payload interface{}) (string, interface{}) {
		seen = append(seen, "m2:"+command)
		return command, payload
	})

	for _, mw := range c.middlewares {
		_, _ = mw("ADD", nil)
	}
	assert.Equal([]string{"m1:ADD", "m2:ADD"}, seen)
}
