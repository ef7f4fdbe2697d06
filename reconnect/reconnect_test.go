package reconnect

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
)

func TestScheduleReconnectRetriesUntilSuccess(t *testing.T) {
	assert := tdd.New(t)
	m := New(Options{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxAttempts: 5})

	var calls int32
	done := make(chan struct{})
	m.ScheduleReconnect(func() error {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return errors.New("not yet")
		}
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconnect never succeeded")
	}
	assert.GreaterOrEqual(atomic.LoadInt32(&calls), int32(3))
}

func TestScheduleReconnectCollapsesConcurrentCalls(t *testing.T) {
	assert := tdd.New(t)
	m := New(Options{BaseDelay: 20 * time.Millisecond, MaxDelay: 20 * time.Millisecond, MaxAttempts: 5})

	var calls int32
	cb := func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	m.ScheduleReconnect(cb)
	m.ScheduleReconnect(cb)
	m.ScheduleReconnect(cb)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(int32(1), atomic.LoadInt32(&calls))
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	assert := tdd.New(t)
	gaveUp := make(chan error, 1)
	m := New(Options{
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		MaxAttempts: 2,
		OnGiveUp:    func(err error) { gaveUp <- err },
	})

	m.ScheduleReconnect(func() error { return errors.New("still failing") })

	select {
	case err := <-gaveUp:
		assert.Error(err)
	case <-time.After(time.Second):
		t.Fatal("never gave up")
	}
}

func TestCancelStopsFurtherAttempts(t *testing.T) {
	assert := tdd.New(t)
	m := New(Options{BaseDelay: 10 * time.Millisecond, MaxDelay: 10 * time.Millisecond, MaxAttempts: 5})

	var calls int32
	m.ScheduleReconnect(func() error {
		atomic.AddInt32(&calls, 1)
		return errors.New("fail")
	})
	m.Cancel()

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(atomic.LoadInt32(&calls), int32(1))
}
