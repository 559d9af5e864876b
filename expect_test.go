package aexpect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPatternsFirstToLast(t *testing.T) {
	idx := MatchPatterns("login: ", []string{"password:", "login:"})
	assert.Equal(t, 1, idx)
}

func TestMatchPatternsSkipsEmpty(t *testing.T) {
	idx := MatchPatterns("hello world", []string{"", "world"})
	assert.Equal(t, 1, idx)
}

func TestMatchPatternsNoMatch(t *testing.T) {
	assert.Equal(t, -1, MatchPatterns("hello", []string{"goodbye"}))
}

func TestMatchPatternsMultilinePriority(t *testing.T) {
	lines := []string{"foo", "bar", "baz"}
	// Both "bar" (index 0) and "baz" (index 1) match some line; priority
	// runs last-to-first, so index 1 ("baz") wins.
	idx := MatchPatternsMultiline(lines, []string{"bar", "baz"})
	assert.Equal(t, 1, idx)
}

func TestMatchPatternsMultilineSkipsEmpty(t *testing.T) {
	lines := []string{"one", "two"}
	idx := MatchPatternsMultiline(lines, []string{"one", ""})
	assert.Equal(t, 0, idx)
}

func TestMatchPatternsMultilineNoMatch(t *testing.T) {
	assert.Equal(t, -1, MatchPatternsMultiline([]string{"x"}, []string{"y"}))
}

func TestExpectErrorMessages(t *testing.T) {
	timeoutErr := &ExpectTimeoutError{ExpectError{Patterns: []string{"foo"}, Output: "bar"}}
	assert.Contains(t, timeoutErr.Error(), "timeout")
	assert.Contains(t, timeoutErr.Error(), "foo")

	termErr := &ExpectProcessTerminatedError{ExpectError{Patterns: []string{"foo"}, Output: "bar"}, 7}
	assert.Contains(t, termErr.Error(), "terminated")
	assert.Contains(t, termErr.Error(), "7")
}
