package pubsub

import (
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func TestCompilePatternStarMatchesOneSegment(t *testing.T) {
	assert := tdd.New(t)
	m, err := compilePattern("user.*.created")
	assert.NoError(err)
	assert.True(m.MatchString("user.42.created"))
	assert.False(m.MatchString("user.42.nested.created"))
	assert.False(m.MatchString("user.created"))
}

func TestCompilePatternHashMatchesZeroOrMore(t *testing.T) {
	assert := tdd.New(t)
	m, err := compilePattern("user.#")
	assert.NoError(err)
	assert.True(m.MatchString("user."))
	assert.True(m.MatchString("user.42.created"))
}

func TestCompilePatternExactMatch(t *testing.T) {
	assert := tdd.New(t)
	m, err := compilePattern("user.created")
	assert.NoError(err)
	assert.True(m.MatchString("user.created"))
	assert.False(m.MatchString("user.updated"))
}

func TestCompilePatternEscapesDots(t *testing.T) {
	assert := tdd.New(t)
	m, err := compilePattern("a.b")
	assert.NoError(err)
	assert.False(m.MatchString("aXb"))
}
