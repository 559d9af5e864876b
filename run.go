package aexpect

import (
	"syscall"
	"time"
)

// RunTail runs command as a background Tail, waiting up to timeout for it
// to exit before returning it regardless.
func RunTail(command string, terminationFunc func(int), outputFunc func(string), outputPrefix string, timeout time.Duration, autoClose bool) (*Tail, error) {
	t, err := NewTail(TailOptions{
		Options:         Options{Command: command, AutoClose: autoClose},
		OutputFunc:      outputFunc,
		OutputPrefix:    outputPrefix,
		TerminationFunc: terminationFunc,
	})
	if err != nil {
		return nil, err
	}
	waitAliveOrTimeout(t.Spawn, timeout)
	return t, nil
}

// RunBackground runs command as a background Expect, waiting up to
// timeout for it to exit before returning it regardless.
func RunBackground(command string, terminationFunc func(int), outputFunc func(string), outputPrefix string, timeout time.Duration, autoClose bool) (*Expect, error) {
	e, err := NewExpect(ExpectOptions{TailOptions: TailOptions{
		Options:         Options{Command: command, AutoClose: autoClose},
		OutputFunc:      outputFunc,
		OutputPrefix:    outputPrefix,
		TerminationFunc: terminationFunc,
	}})
	if err != nil {
		return nil, err
	}
	waitAliveOrTimeout(e.Spawn, timeout)
	return e, nil
}

// RunForeground runs command, waits up to timeout for it to exit, kills
// it if it is still running, and returns its exit status (or (0, false)
// if it was killed before exiting) along with its captured output.
func RunForeground(command string, outputFunc func(string), outputPrefix string, timeout time.Duration) (status int, ok bool, output string) {
	bg, err := RunBackground(command, nil, outputFunc, outputPrefix, timeout, false)
	if err != nil {
		return 0, false, ""
	}
	output, _ = bg.Output()
	if bg.IsAlive() {
		bg.Kill(syscall.SIGKILL)
	} else {
		status, ok = bg.Status()
	}
	bg.Close(syscall.SIGKILL)
	return status, ok, output
}

func waitAliveOrTimeout(s *Spawn, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) && s.IsAlive() {
		time.Sleep(100 * time.Millisecond)
	}
}
