package errors

import (
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestErrorRoundTrip(t *testing.T) {
	assert := tdd.New(t)

	err := New(CodeValidationMissingCommand, "command is required").
		WithDetails(map[string]interface{}{"field": "command"})
	assert.Equal(CodeValidationMissingCommand, err.Code())
	assert.Equal("command is required", err.Error())

	raw, mErr := err.MarshalJSON()
	assert.NoError(mErr)
	assert.Contains(string(raw), `"VALIDATION:MISSING_COMMAND"`)

	restored := FromReport(err.Code(), err.Error(), err.Details())
	assert.Equal(err.Code(), restored.Code())
	assert.Equal(err.Error(), restored.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	assert := tdd.New(t)

	root := New(CodeConnectionFailed, "dial failed")
	wrapped := Wrap(root, CodeConnectionFailed, "connect")
	assert.Equal(root, wrapped.Unwrap())
	assert.Equal(root, wrapped.Cause())
	assert.Equal(CodeConnectionFailed, CodeOf(wrapped))
}

func TestCodeOfPlainError(t *testing.T) {
	assert := tdd.New(t)
	assert.Equal(Code(""), CodeOf(NewPlain("boom")))
}
