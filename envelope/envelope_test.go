package envelope

import (
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestJSONSerializerRoundTrip(t *testing.T) {
	assert := tdd.New(t)

	in := RequestEnvelope{
		ID:        "req-1",
		Command:   "ADD",
		Timestamp: 1000,
		Data:      map[string]interface{}{"a": float64(5), "b": float64(3)},
		Metadata:  map[string]interface{}{"trace": "abc"},
	}

	raw, err := Default.Encode(in)
	assert.NoError(err)

	var out RequestEnvelope
	assert.NoError(Default.Decode(raw, &out))
	assert.Equal(in, out)
}

func TestFastJSONSerializerRoundTrip(t *testing.T) {
	assert := tdd.New(t)
	fast := FastJSONSerializer{}

	in := EventEnvelope{EventName: "user.created", Timestamp: 42}
	raw, err := fast.Encode(in)
	assert.NoError(err)

	var out EventEnvelope
	assert.NoError(fast.Decode(raw, &out))
	assert.Equal(in, out)
}

func TestNormalizeCommand(t *testing.T) {
	assert := tdd.New(t)
	assert.Equal("ADD", NormalizeCommand(" add "))
	assert.Equal("DIVIDE", NormalizeCommand("Divide"))
}

func TestNoopValidator(t *testing.T) {
	assert := tdd.New(t)
	ok, errs := NoopValidator{}.Validate(42)
	assert.True(ok)
	assert.Empty(errs)
}
