package aexpect

import (
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// TailOptions configures a Tail on top of the base Options.
type TailOptions struct {
	Options

	// OutputFunc, if set, is called with each line of output as it
	// arrives (with trailing whitespace, including the newline, removed).
	OutputFunc func(line string)
	// OutputPrefix is prepended to every line passed to OutputFunc.
	OutputPrefix string
	// TerminationFunc, if set, is called once with the child's exit
	// status when it terminates.
	TerminationFunc func(status int)
}

// Tail runs a child process and reports its output, line by line, to a
// callback in the background, plus the exit status on termination. It
// embeds Spawn, so every Spawn method is available directly.
type Tail struct {
	*Spawn

	outputFunc      func(string)
	outputPrefix    string
	terminationFunc func(int)

	wg       sync.WaitGroup
	kill     chan struct{}
	killOne  sync.Once
	startOne sync.Once
}

// NewTail starts (or attaches to) a session and begins tailing its
// output in the background if OutputFunc or TerminationFunc is set.
func NewTail(opts TailOptions) (*Tail, error) {
	spawn, err := newSpawn(opts.Options, []string{"tail"})
	if err != nil {
		return nil, err
	}
	return newTail(spawn, opts), nil
}

// newTail wires a Tail around an already-constructed Spawn, shared by
// NewTail and every type that embeds Tail (Expect, ShellSession) so each
// only has to add its own extra reader FIFOs.
func newTail(spawn *Spawn, opts TailOptions) *Tail {
	t := &Tail{
		Spawn:           spawn,
		outputFunc:      opts.OutputFunc,
		outputPrefix:    opts.OutputPrefix,
		terminationFunc: opts.TerminationFunc,
		kill:            make(chan struct{}),
	}
	t.addCloseHook(t.stopTailing)
	if opts.OutputFunc != nil || opts.TerminationFunc != nil {
		t.startTailing()
	}
	return t
}

// SetOutputFunc changes the per-line callback, starting the background
// reader if it is not already running.
func (t *Tail) SetOutputFunc(fn func(string)) {
	t.outputFunc = fn
	t.startTailing()
}

// SetTerminationFunc changes the exit-status callback, starting the
// background reader if it is not already running.
func (t *Tail) SetTerminationFunc(fn func(int)) {
	t.terminationFunc = fn
	t.startTailing()
}

// SetOutputPrefix changes the string prepended to each reported line.
func (t *Tail) SetOutputPrefix(prefix string) {
	t.outputPrefix = prefix
}

func (t *Tail) startTailing() {
	t.startOne.Do(func() {
		fd, ok := t.getFd("tail")
		if !ok {
			return
		}
		t.wg.Add(1)
		go t.tailLoop(fd)
	})
}

// tailLoop runs in its own goroutine: it polls the "tail" reader fd,
// splits accumulated bytes into lines, and reports each complete line
// (plus, on exit, the trailing partial line and the final status).
func (t *Tail) tailLoop(fd int) {
	defer t.wg.Done()

	print := func(text string) {
		text = t.outputPrefix + strings.TrimRight(text, " \t\r\n")
		if t.outputFunc != nil {
			t.outputFunc(text)
		}
	}

	pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	buf := make([]byte, 1024)
	var bfr strings.Builder

	for {
		select {
		case <-t.kill:
			return
		default:
		}

		n, err := unix.Poll(pollFds, 50)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			break
		}
		if n == 0 {
			if bfr.Len() > 0 {
				print(bfr.String())
				bfr.Reset()
			}
			continue
		}
		if pollFds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
			continue
		}
		nr, rerr := unix.Read(fd, buf)
		if nr <= 0 {
			break
		}
		bfr.WriteString(string(buf[:nr]))
		text := bfr.String()
		lines := strings.Split(text, "\n")
		for _, line := range lines[:len(lines)-1] {
			print(line)
		}
		bfr.Reset()
		bfr.WriteString(lines[len(lines)-1])
		if rerr != nil && rerr != unix.EAGAIN {
			break
		}
	}

	if bfr.Len() > 0 {
		print(bfr.String())
	}
	status, ok := t.Status()
	if !ok {
		return
	}
	print("(Process terminated with status " + strconv.Itoa(status) + ")")
	if t.terminationFunc != nil {
		t.terminationFunc(status)
	}
}

func (t *Tail) stopTailing() {
	t.killOne.Do(func() { close(t.kill) })
	t.wg.Wait()
}
