package dedupe

import (
	"errors"
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
)

func TestProcessCachesByMessageID(t *testing.T) {
	assert := tdd.New(t)
	d, err := New(Options{CacheSize: 10, CacheTTL: time.Minute})
	assert.NoError(err)

	calls := 0
	handler := func() (interface{}, error) {
		calls++
		return "computed", nil
	}

	out1, err := d.Process([]byte("body"), "msg-1", handler)
	assert.NoError(err)
	assert.False(out1.Duplicate)
	assert.Equal("computed", out1.Result)

	out2, err := d.Process([]byte("body"), "msg-1", handler)
	assert.NoError(err)
	assert.True(out2.Duplicate)
	assert.Equal("computed", out2.Result)
	assert.Equal(1, calls)
}

func TestProcessFallsBackToContentHash(t *testing.T) {
	assert := tdd.New(t)
	d, _ := New(Options{CacheSize: 10, CacheTTL: time.Minute})

	handler := func() (interface{}, error) { return 1, nil }
	out1, _ := d.Process([]byte("same-body"), "", handler)
	out2, _ := d.Process([]byte("same-body"), "", handler)

	assert.False(out1.Duplicate)
	assert.True(out2.Duplicate)
}

func TestProcessDoesNotCacheOnError(t *testing.T) {
	assert := tdd.New(t)
	d, _ := New(Options{CacheSize: 10, CacheTTL: time.Minute})

	_, err := d.Process([]byte("body"), "msg-err", func() (interface{}, error) {
		return nil, errors.New("boom")
	})
	assert.Error(err)
	assert.Equal(0, d.Len())
}

func TestProcessExpiresAfterTTL(t *testing.T) {
	assert := tdd.New(t)
	d, _ := New(Options{CacheSize: 10, CacheTTL: time.Millisecond})

	handler := func() (interface{}, error) { return "v", nil }
	out1, _ := d.Process([]byte("b"), "msg", handler)
	time.Sleep(5 * time.Millisecond)
	out2, _ := d.Process([]byte("b"), "msg", handler)

	assert.False(out1.Duplicate)
	assert.False(out2.Duplicate)
}

func TestExtractorFallsBackOnError(t *testing.T) {
	assert := tdd.New(t)
	d, _ := New(Options{
		CacheSize: 10,
		CacheTTL:  time.Minute,
		Extractor: func(body []byte, messageID string) (string, error) {
			return "", errors.New("extractor failed")
		},
	})

	handler := func() (interface{}, error) { return "v", nil }
	out1, _ := d.Process([]byte("body"), "msg-2", handler)
	out2, _ := d.Process([]byte("body"), "msg-2", handler)
	assert.False(out1.Duplicate)
	assert.True(out2.Duplicate)
}
