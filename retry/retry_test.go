package retry

import (
	"errors"
	"testing"
	"time"

	tdd "github.com/stretchr/testify/assert"
)

func TestExecuteSucceedsAfterRetries(t *testing.T) {
	assert := tdd.New(t)
	p := New(Options{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})

	attempts := 0
	err := p.Execute(func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(err)
	assert.Equal(3, attempts)
}

func TestExecuteExhaustsMaxAttempts(t *testing.T) {
	assert := tdd.New(t)
	p := New(Options{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})

	attempts := 0
	wantErr := errors.New("permanent")
	err := p.Execute(func() error {
		attempts++
		return wantErr
	})

	assert.Equal(wantErr, err)
	assert.Equal(2, attempts)
}

func TestExecuteRespectsShouldRetryPredicate(t *testing.T) {
	assert := tdd.New(t)
	nonRetryable := errors.New("do not retry")
	p := New(Options{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		ShouldRetry: func(err error, attempt int) bool {
			return err != nonRetryable
		},
	})

	attempts := 0
	err := p.Execute(func() error {
		attempts++
		return nonRetryable
	})

	assert.Equal(nonRetryable, err)
	assert.Equal(1, attempts)
}
