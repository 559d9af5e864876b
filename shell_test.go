package aexpect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveCommandEchoStripsFirstLine(t *testing.T) {
	got := removeCommandEcho("ls -la\nfile1\nfile2\n", "ls -la")
	assert.Equal(t, "file1\nfile2\n", got)
}

func TestRemoveCommandEchoNoMatchLeavesUnchanged(t *testing.T) {
	got := removeCommandEcho("unrelated\nfile1\n", "ls -la")
	assert.Equal(t, "unrelated\nfile1\n", got)
}

func TestRemoveLastNonemptyLineDropsPrompt(t *testing.T) {
	got := removeLastNonemptyLine("file1\nfile2\n$ ")
	assert.Equal(t, "file1\nfile2\n", got)
}

func TestIsDigits(t *testing.T) {
	assert.True(t, isDigits("0"))
	assert.True(t, isDigits("12345"))
	assert.False(t, isDigits(""))
	assert.False(t, isDigits("12a"))
	assert.False(t, isDigits("-1"))
}

func TestShellErrorMessages(t *testing.T) {
	cmdErr := &ShellCmdError{ShellError{Cmd: "false", Output: ""}, 1}
	assert.Contains(t, cmdErr.Error(), "false")
	assert.Contains(t, cmdErr.Error(), "1")

	statusErr := &ShellStatusError{ShellError{Cmd: "weird", Output: "??"}}
	assert.Contains(t, statusErr.Error(), "weird")
}
