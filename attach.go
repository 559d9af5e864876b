package aexpect

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// AttachInteractive puts the calling process's own stdin in raw mode and
// relays it to the session's child process, copying the session's output
// back to stdout, until detachKey is read from stdin (detachKey == 0
// disables the detach shortcut) or the session's tail reader stops
// producing lines. It restores the terminal before returning.
//
// This is the primitive a caller builds an interactive front-end on top
// of; aexpect does not ship one itself.
func (s *Spawn) AttachInteractive(detachKey byte) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("aexpect: stdin is not a terminal")
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("aexpect: set raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	reader, ok := s.getFd("tail")
	if !ok {
		return fmt.Errorf("aexpect: session has no tail reader attached")
	}

	done := make(chan struct{}, 1)
	signalDone := func() {
		select {
		case done <- struct{}{}:
		default:
		}
	}

	go func() {
		io.Copy(os.Stdout, readerFile(reader))
		signalDone()
	}()

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if detachKey != 0 {
					for i := 0; i < n; i++ {
						if buf[i] == detachKey {
							signalDone()
							return
						}
					}
				}
				s.Send(string(buf[:n]))
			}
			if err != nil {
				signalDone()
				return
			}
		}
	}()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)

	sendSize := func() {
		if cols, rows, err := term.GetSize(fd); err == nil {
			s.SendControl(fmt.Sprintf("winch %d %d", rows, cols))
		}
	}
	sendSize()
	go func() {
		for range winch {
			sendSize()
		}
	}()

	<-done
	return nil
}

// readerFile wraps a raw reader fd with blocking reads via unix.Read,
// satisfying io.Reader for AttachInteractive's output-copy goroutine.
type readerFile int

func (r readerFile) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(int(r), p)
		if err == unix.EAGAIN {
			continue
		}
		return n, err
	}
}
