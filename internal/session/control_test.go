package session

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCtrlFrameRoundTrip(t *testing.T) {
	frame := EncodeCtrlFrame("winch 24 80")
	assert.Equal(t, "0000000011winch 24 80", string(frame))

	r := bufio.NewReader(bytes.NewReader(frame))
	payload, err := ReadCtrlFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "winch 24 80", payload)
}

func TestReadCtrlFrameMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(EncodeCtrlFrame("raw"))
	buf.Write(EncodeCtrlFrame("cooked 1"))

	r := bufio.NewReader(&buf)
	first, err := ReadCtrlFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "raw", first)

	second, err := ReadCtrlFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "cooked 1", second)
}

func TestReadCtrlFrameRejectsOversizedLength(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("9999999999payload"))
	_, err := ReadCtrlFrame(r)
	assert.Error(t, err)
}

func TestReadCtrlFrameRejectsZeroLength(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("0000000000"))
	_, err := ReadCtrlFrame(r)
	assert.Error(t, err)
}

func TestBootstrapRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	b := Bootstrap{ID: "abc12345", Echo: true, Consumers: []string{"tail", "expect"}, Command: "/bin/bash -l"}
	require.NoError(t, WriteBootstrap(&buf, b))

	got, err := ReadBootstrap(&buf)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestBootstrapEmptyConsumers(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBootstrap(&buf, Bootstrap{ID: "x", Echo: false, Command: "true"}))

	got, err := ReadBootstrap(&buf)
	require.NoError(t, err)
	assert.Empty(t, got.Consumers)
	assert.False(t, got.Echo)
}

func TestReadySentinel(t *testing.T) {
	assert.Equal(t, "Server abc123 ready", ReadySentinel("abc123"))
}
