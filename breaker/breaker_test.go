package breaker

import (
	"errors"
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	assert := tdd.New(t)
	b := New(Options{FailureThreshold: 2, ResetTimeout: 50 * time.Millisecond})

	fail := func() (interface{}, error) { return nil, errors.New("boom") }

	_, _ = b.Execute(fail)
	_, _ = b.Execute(fail)
	assert.Equal(Open, b.State())

	_, err := b.Execute(func() (interface{}, error) { return "unreached", nil })
	assert.Error(err)
}

func TestBreakerHalfOpensAfterTimeout(t *testing.T) {
	assert := tdd.New(t)
	b := New(Options{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, HalfOpenMaxAttempts: 1})

	_, _ = b.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	assert.Equal(Open, b.State())

	time.Sleep(20 * time.Millisecond)

	v, err := b.Execute(func() (interface{}, error) { return "ok", nil })
	assert.NoError(err)
	assert.Equal("ok", v)
	assert.Equal(Closed, b.State())
}

func TestBreakerEmitsStateChange(t *testing.T) {
	assert := tdd.New(t)
	var events []StateChangeEvent
	b := New(Options{
		FailureThreshold: 1,
		OnStateChange: func(ev StateChangeEvent) {
			events = append(events, ev)
		},
	})

	_, _ = b.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	assert.NotEmpty(events)
	assert.Equal(Open, events[len(events)-1].New)
}
