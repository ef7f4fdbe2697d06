package parser

import (
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestParseValidJSON(t *testing.T) {
	assert := tdd.New(t)
	res := Parse([]byte(`{"a":1}`), DefaultOptions())
	assert.True(res.Success)
	assert.Equal(map[string]interface{}{"a": float64(1)}, res.Data)
}

func TestParseOversize(t *testing.T) {
	assert := tdd.New(t)
	res := Parse([]byte(`{"a":1}`), Options{MaxSize: 3, Disposition: Reject})
	assert.False(res.Success)
	assert.Equal(Reject, res.Disposition)
}

func TestParseNullByte(t *testing.T) {
	assert := tdd.New(t)
	res := Parse([]byte("{\"a\":\x001}"), Options{Disposition: DLQ})
	assert.False(res.Success)
	assert.Equal(DLQ, res.Disposition)
}

func TestParseBadJSON(t *testing.T) {
	assert := tdd.New(t)
	res := Parse([]byte("not json"), DefaultOptions())
	assert.False(res.Success)
}

func TestParseNullRoot(t *testing.T) {
	assert := tdd.New(t)
	res := Parse([]byte("null"), DefaultOptions())
	assert.False(res.Success)
}

func TestParseDefaultsDispositionToReject(t *testing.T) {
	assert := tdd.New(t)
	res := Parse([]byte("null"), Options{})
	assert.Equal(Reject, res.Disposition)
}
