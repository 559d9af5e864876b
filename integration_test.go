//go:build integration

// Integration tests against a real aexpect-helper binary and real PTYs.
//
// TestMain builds cmd/aexpect-helper once, drops it on PATH, and the tests
// below spawn actual /bin/sh processes through it.
//
// Run with:
//
//	go test -tags=integration ./...

package aexpect

import (
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	tmpBin, err := os.MkdirTemp("", "aexpect-inttest-bin-*")
	if err != nil {
		panic("MkdirTemp: " + err.Error())
	}
	defer os.RemoveAll(tmpBin)

	helperBin := filepath.Join(tmpBin, "aexpect-helper")
	cmd := exec.Command("go", "build", "-o", helperBin, "./cmd/aexpect-helper")
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		panic("build aexpect-helper: " + err.Error())
	}

	os.Setenv("PATH", tmpBin+string(os.PathListSeparator)+os.Getenv("PATH"))
	os.Exit(m.Run())
}

func TestSpawnExitStatus(t *testing.T) {
	s, err := newSpawn(Options{Command: `echo HELLO; exit 7`}, nil)
	require.NoError(t, err)
	defer s.Close(syscall.SIGKILL)

	status, ok := s.Status()
	require.True(t, ok)
	assert.Equal(t, 7, status)

	output, ok := s.Output()
	require.True(t, ok)
	assert.Contains(t, output, "HELLO")
}

func TestShellSessionCmdStatusOutput(t *testing.T) {
	sess, err := NewShellSession(ShellOptions{ExpectOptions: ExpectOptions{TailOptions: TailOptions{
		Options: Options{Command: "sh"},
	}}})
	require.NoError(t, err)
	defer sess.Close(syscall.SIGKILL)

	status, out, err := sess.CmdStatusOutput("true", 10*time.Second, 0, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Empty(t, out)
}

func TestShellSessionCmdOutputReturnsCommandOutput(t *testing.T) {
	sess, err := NewShellSession(ShellOptions{ExpectOptions: ExpectOptions{TailOptions: TailOptions{
		Options: Options{Command: "sh"},
	}}})
	require.NoError(t, err)
	defer sess.Close(syscall.SIGKILL)

	out, err := sess.CmdOutput("echo marco", 10*time.Second, 0, nil, false)
	require.NoError(t, err)
	assert.Contains(t, out, "marco")
}

func TestShellSessionCmdRaisesOnNonzeroStatus(t *testing.T) {
	sess, err := NewShellSession(ShellOptions{ExpectOptions: ExpectOptions{TailOptions: TailOptions{
		Options: Options{Command: "sh"},
	}}})
	require.NoError(t, err)
	defer sess.Close(syscall.SIGKILL)

	_, err = sess.Cmd("false", 10*time.Second, 0, nil, nil, false)
	var cmdErr *ShellCmdError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.Status)
}

func TestTailCollectsOutputAndStatus(t *testing.T) {
	var lines []string
	var status int
	done := make(chan struct{})

	tail, err := NewTail(TailOptions{
		Options: Options{Command: `echo one; echo two; exit 3`},
		OutputFunc: func(line string) {
			lines = append(lines, line)
		},
		TerminationFunc: func(s int) {
			status = s
			close(done)
		},
	})
	require.NoError(t, err)
	defer tail.Close(syscall.SIGKILL)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("termination callback never fired")
	}

	assert.Equal(t, 3, status)
	assert.Contains(t, lines, "one")
	assert.Contains(t, lines, "two")
}
