package aexpect

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ianremillard/aexpect/internal/session"
)

// ExpectOptions configures an Expect on top of TailOptions.
type ExpectOptions struct {
	TailOptions
}

// Expect runs a child process and provides pattern-based blocking reads
// on top of everything Tail offers.
type Expect struct {
	*Tail
}

// NewExpect starts (or attaches to) a session with both the "tail" and
// "expect" reader FIFOs.
func NewExpect(opts ExpectOptions) (*Expect, error) {
	spawn, err := newSpawn(opts.Options, []string{"tail", "expect"})
	if err != nil {
		return nil, err
	}
	return &Expect{Tail: newTail(spawn, opts.TailOptions)}, nil
}

// ReadNonblocking reads from the child until nothing new arrives for
// internalTimeout, or until timeout elapses overall. internalTimeout <= 0
// uses a 100ms default; timeout <= 0 means no overall deadline.
func (e *Expect) ReadNonblocking(internalTimeout, timeout time.Duration) string {
	if internalTimeout <= 0 {
		internalTimeout = 100 * time.Millisecond
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	fd, ok := e.getFd("expect")
	if !ok {
		return ""
	}

	var data strings.Builder
	buf := make([]byte, 1024)
	for {
		wait := internalTimeout
		if !deadline.IsZero() {
			if remaining := time.Until(deadline); remaining < wait {
				wait = remaining
			}
		}
		if wait < 0 {
			wait = 0
		}
		n, err := unix.Poll([]unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}, int(wait.Milliseconds()))
		if err != nil {
			return data.String()
		}
		if n == 0 {
			return data.String()
		}
		nr, _ := unix.Read(fd, buf)
		if nr <= 0 {
			return data.String()
		}
		data.Write(buf[:nr])
		if !deadline.IsZero() && time.Now().After(deadline) {
			return data.String()
		}
	}
}

// MatchPatterns returns the index of the first pattern matching a
// substring of cont, skipping empty patterns, or -1 if none match.
func MatchPatterns(cont string, patterns []string) int {
	for i, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		if re.MatchString(cont) {
			return i
		}
	}
	return -1
}

// MatchPatternsMultiline matches each line in cont against patterns,
// checking patterns in reverse (last-to-first) priority order, skipping
// empty patterns. Returns the index of the first (in iteration order, so
// highest-priority) pattern that matches any line, or -1 if none match.
func MatchPatternsMultiline(cont []string, patterns []string) int {
	for i := len(patterns) - 1; i >= 0; i-- {
		if patterns[i] == "" {
			continue
		}
		re, err := regexp.Compile(patterns[i])
		if err != nil {
			continue
		}
		for _, line := range cont {
			if re.MatchString(line) {
				return i
			}
		}
	}
	return -1
}

// matchResult is what ReadUntilOutputMatches returns: which pattern
// matched and the full output accumulated while waiting for it.
type matchResult struct {
	Index  int
	Output string
}

// ReadUntilOutputMatches reads using ReadNonblocking until filterFunc's
// view of the accumulated output matches one of patterns under matchFunc,
// or until timeout expires.
func (e *Expect) ReadUntilOutputMatches(
	patterns []string,
	filterFunc func(string) string,
	timeout, internalTimeout time.Duration,
	printFunc func(string),
	matchFunc func(string, []string) int,
) (matchResult, error) {
	if filterFunc == nil {
		filterFunc = func(s string) string { return s }
	}
	if matchFunc == nil {
		matchFunc = MatchPatterns
	}
	fd, ok := e.getFd("expect")
	if !ok {
		return matchResult{}, &ExpectError{Patterns: patterns}
	}

	var out strings.Builder
	deadline := time.Now().Add(timeout)
	for {
		// First check, with no side effects, whether the fd has anything
		// to offer at all before the deadline: a flat timeout here (fd
		// never became readable) is a plain ExpectTimeoutError, with no
		// grace window — only a readable-then-empty read means the
		// process's side of the pipe actually closed.
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		n, perr := unix.Poll([]unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}, int(remaining.Milliseconds()))
		if perr != nil || n == 0 {
			return matchResult{}, &ExpectTimeoutError{ExpectError: ExpectError{Patterns: patterns, Output: out.String()}}
		}

		data := e.ReadNonblocking(internalTimeout, time.Until(deadline))
		if data == "" {
			return matchResult{}, e.terminatedOrError(patterns, out.String())
		}
		if printFunc != nil {
			for _, line := range strings.Split(data, "\n") {
				printFunc(line)
			}
		}
		out.WriteString(data)
		if idx := matchFunc(filterFunc(out.String()), patterns); idx >= 0 {
			return matchResult{Index: idx, Output: out.String()}, nil
		}
	}
}

// terminatedOrError distinguishes ExpectProcessTerminatedError from a
// bare ExpectError once the expect fd has gone empty after having been
// readable: the fd closing means the Helper tore it down, which normally
// means the child exited, but is given a short grace window to confirm
// before falling back to a generic error (mirrors the original's
// 5-second wait_for check).
func (e *Expect) terminatedOrError(patterns []string, output string) error {
	if session.WaitFor(func() bool { return !e.IsAlive() }, 5*time.Second, 0, 100*time.Millisecond) {
		status, _ := e.Status()
		return &ExpectProcessTerminatedError{ExpectError: ExpectError{Patterns: patterns, Output: output}, Status: status}
	}
	return &ExpectError{Patterns: patterns, Output: output}
}

// ReadUntilLastWordMatches matches patterns against only the last
// whitespace-separated word of the output read so far.
func (e *Expect) ReadUntilLastWordMatches(patterns []string, timeout, internalTimeout time.Duration, printFunc func(string)) (matchResult, error) {
	lastWord := func(cont string) string {
		fields := strings.Fields(cont)
		if len(fields) == 0 {
			return ""
		}
		return fields[len(fields)-1]
	}
	return e.ReadUntilOutputMatches(patterns, lastWord, timeout, internalTimeout, printFunc, nil)
}

// ReadUntilLastLineMatches matches patterns against only the last
// non-empty line of the output read so far.
func (e *Expect) ReadUntilLastLineMatches(patterns []string, timeout, internalTimeout time.Duration, printFunc func(string)) (matchResult, error) {
	lastNonEmptyLine := func(cont string) string {
		lines := strings.Split(cont, "\n")
		for i := len(lines) - 1; i >= 0; i-- {
			if strings.TrimSpace(lines[i]) != "" {
				return lines[i]
			}
		}
		return ""
	}
	return e.ReadUntilOutputMatches(patterns, lastNonEmptyLine, timeout, internalTimeout, printFunc, nil)
}

// ReadUntilAnyLineMatches matches patterns against every line of the
// output read so far, using MatchPatternsMultiline's last-to-first
// pattern priority.
func (e *Expect) ReadUntilAnyLineMatches(patterns []string, timeout, internalTimeout time.Duration, printFunc func(string)) (matchResult, error) {
	multiline := func(cont string) string { return cont }
	matchFunc := func(cont string, patterns []string) int {
		return MatchPatternsMultiline(strings.Split(cont, "\n"), patterns)
	}
	return e.ReadUntilOutputMatches(patterns, multiline, timeout, internalTimeout, printFunc, matchFunc)
}
