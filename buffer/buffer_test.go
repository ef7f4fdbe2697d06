package buffer

import (
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
)

func TestAddRejectsWhenFull(t *testing.T) {
	assert := tdd.New(t)
	b := New(1, time.Minute)

	_, err := b.Add([]byte("a"), "ex", "rk", false, true)
	assert.NoError(err)

	_, err = b.Add([]byte("b"), "ex", "rk", false, true)
	assert.Error(err)
}

func TestFlushIsFIFO(t *testing.T) {
	assert := tdd.New(t)
	b := New(0, time.Minute)

	e1, _ := b.Add([]byte("1"), "ex", "rk", false, true)
	e2, _ := b.Add([]byte("2"), "ex", "rk", false, true)

	entries := b.Flush()
	assert.Equal([]*Entry{e1, e2}, entries)
	assert.Equal(0, b.Len())
}

func TestFlushExpiresOldEntries(t *testing.T) {
	assert := tdd.New(t)
	b := New(0, time.Millisecond)

	e, _ := b.Add([]byte("1"), "ex", "rk", false, true)
	time.Sleep(5 * time.Millisecond)

	entries := b.Flush()
	assert.Empty(entries)
	assert.Error(e.Wait())
}

func TestClearRejectsOutstanding(t *testing.T) {
	assert := tdd.New(t)
	b := New(0, time.Minute)

	e, _ := b.Add([]byte("1"), "ex", "rk", false, true)
	b.Clear(assert.AnError)

	assert.Equal(assert.AnError, e.Wait())
	assert.Equal(0, b.Len())
}

func TestResolveAndReject(t *testing.T) {
	assert := tdd.New(t)
	b := New(0, time.Minute)

	e1, _ := b.Add([]byte("1"), "ex", "rk", false, true)
	b.Resolve(e1)
	assert.NoError(e1.Wait())

	e2, _ := b.Add([]byte("2"), "ex", "rk", false, true)
	b.Reject(e2, assert.AnError)
	assert.Equal(assert.AnError, e2.Wait())
}
