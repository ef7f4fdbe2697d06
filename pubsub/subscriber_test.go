package pubsub

import (
	"context"
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func noopHandler(ctx context.Context, eventName string, data interface{}, metadata map[string]interface{}) error {
	return nil
}

func TestOnRegistersBindingBeforeStart(t *testing.T) {
	assert := tdd.New(t)
	s := NewSubscriber(nil, SubscriberOptions{Exchange: "events"})

	err := s.On("user.*.created", noopHandler)
	assert.NoError(err)
	assert.Len(s.bindings, 1)
}

func TestOnRejectsInvalidPattern(t *testing.T) {
	assert := tdd.New(t)
	s := NewSubscriber(nil, SubscriberOptions{Exchange: "events"})

	err := s.On("[", noopHandler)
	assert.Error(err)
}

func TestDefaultOptionsAreApplied(t *testing.T) {
	assert := tdd.New(t)
	s := NewSubscriber(nil, SubscriberOptions{Exchange: "events"})
	assert.Equal(Strict, s.opts.ErrorMode)
	assert.Equal(10, s.opts.PrefetchCount)
	assert.Equal("topic", s.opts.ExchangeKind)
}
