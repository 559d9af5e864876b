package aexpect

import (
	"strconv"
	"strings"
	"time"
)

// defaultPrompt matches a trailing "$" or "#" (optionally followed by
// whitespace), the common shell-prompt shape.
const defaultPrompt = `[#$]\s*$`

// defaultStatusTestCommand retrieves the previous command's exit status
// in any POSIX shell.
const defaultStatusTestCommand = "echo $?"

// ShellOptions configures a ShellSession on top of ExpectOptions.
type ShellOptions struct {
	ExpectOptions

	// Prompt is a regular expression matching the shell's prompt line.
	// Defaults to defaultPrompt.
	Prompt string
	// StatusTestCommand retrieves the exit status of the previous
	// command. Defaults to "echo $?".
	StatusTestCommand string
}

// ShellSession runs an interactive shell (or anything presenting a
// prompt, such as an SSH or serial console session) and provides
// command/status/output plumbing on top of everything Expect offers.
type ShellSession struct {
	*Expect

	prompt            string
	statusTestCommand string
}

// NewShellSession starts (or attaches to) a session and wraps it with
// command-running conveniences.
func NewShellSession(opts ShellOptions) (*ShellSession, error) {
	spawn, err := newSpawn(opts.Options, []string{"tail", "expect"})
	if err != nil {
		return nil, err
	}
	t := newTail(spawn, opts.TailOptions)

	prompt := opts.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	statusTestCommand := opts.StatusTestCommand
	if statusTestCommand == "" {
		statusTestCommand = defaultStatusTestCommand
	}

	return &ShellSession{
		Expect:            &Expect{Tail: t},
		prompt:            prompt,
		statusTestCommand: statusTestCommand,
	}, nil
}

// SetPrompt changes the regular expression used by ReadUpToPrompt.
func (s *ShellSession) SetPrompt(prompt string) { s.prompt = prompt }

// SetStatusTestCommand changes the command used to retrieve a previous
// command's exit status.
func (s *ShellSession) SetStatusTestCommand(cmd string) { s.statusTestCommand = cmd }

// removeCommandEcho strips the echoed command line from the front of
// cont, if present.
func removeCommandEcho(cont, cmd string) string {
	lines := strings.SplitAfter(cont, "\n")
	if len(lines) > 0 && strings.TrimSuffix(lines[0], "\n") == cmd {
		return strings.Join(lines[1:], "")
	}
	return cont
}

// removeLastNonemptyLine drops the final line of cont (after trimming
// trailing whitespace) — used to strip the trailing shell prompt.
func removeLastNonemptyLine(cont string) string {
	trimmed := strings.TrimRight(cont, " \t\r\n")
	lines := strings.SplitAfter(trimmed, "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines[:len(lines)-1], "")
}

// IsResponsive sends a newline and reports whether any output arrives
// within timeout, a liveness probe for interactive sessions such as SSH
// or serial consoles.
func (s *ShellSession) IsResponsive(timeout time.Duration) bool {
	s.ReadNonblocking(0, timeout)
	s.Sendline("")
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
		if strings.TrimSpace(s.ReadNonblocking(0, time.Until(deadline))) != "" {
			return true
		}
	}
	return false
}

// ReadUpToPrompt reads until the last non-empty line matches the prompt.
func (s *ShellSession) ReadUpToPrompt(timeout, internalTimeout time.Duration, printFunc func(string)) (string, error) {
	r, err := s.ReadUntilLastLineMatches([]string{s.prompt}, timeout, internalTimeout, printFunc)
	return r.Output, err
}

// CmdOutput sends cmd and returns its output with the echoed command and
// trailing prompt stripped. If safe is true, CmdOutputSafe is used
// instead (more robust against spurious kernel/debug output on serial
// consoles).
func (s *ShellSession) CmdOutput(cmd string, timeout, internalTimeout time.Duration, printFunc func(string), safe bool) (string, error) {
	if safe {
		return s.CmdOutputSafe(cmd, timeout)
	}
	s.ReadNonblocking(0, timeout)
	s.Sendline(cmd)
	out, err := s.ReadUpToPrompt(timeout, internalTimeout, printFunc)
	if err != nil {
		o := removeCommandEcho(errorOutput(err), cmd)
		switch e := err.(type) {
		case *ExpectTimeoutError:
			return "", &ShellTimeoutError{ShellError{Cmd: cmd, Output: o}}
		case *ExpectProcessTerminatedError:
			return "", &ShellProcessTerminatedError{ShellError{Cmd: cmd, Output: o}, e.Status}
		default:
			return "", &ShellError{Cmd: cmd, Output: o}
		}
	}
	return removeLastNonemptyLine(removeCommandEcho(out, cmd)), nil
}

// errorOutput pulls the partially-read output out of any of the Expect
// error types, for use when a CmdOutput call fails partway through.
func errorOutput(err error) string {
	switch e := err.(type) {
	case *ExpectTimeoutError:
		return e.Output
	case *ExpectProcessTerminatedError:
		return e.Output
	case *ExpectError:
		return e.Output
	default:
		return ""
	}
}

// CmdOutputSafe sends cmd and, if the prompt does not reappear within
// half-second increments, resends a bare newline and keeps trying until
// timeout — tolerates the spurious kernel/debug lines that a serial
// console sometimes interleaves with command output.
func (s *ShellSession) CmdOutputSafe(cmd string, timeout time.Duration) (string, error) {
	s.ReadNonblocking(0, timeout)
	s.Sendline(cmd)

	var out strings.Builder
	success := false
	start := time.Now()
	for time.Since(start) < timeout {
		chunk, err := s.ReadUpToPrompt(500*time.Millisecond, 0, nil)
		if err == nil {
			out.WriteString(chunk)
			success = true
			break
		}
		o := removeCommandEcho(errorOutput(err), cmd)
		switch e := err.(type) {
		case *ExpectTimeoutError:
			out.Reset()
			out.WriteString(o)
			s.Sendline("")
		case *ExpectProcessTerminatedError:
			return "", &ShellProcessTerminatedError{ShellError{Cmd: cmd, Output: o}, e.Status}
		default:
			return "", &ShellError{Cmd: cmd, Output: o}
		}
	}
	if !success {
		return "", &ShellTimeoutError{ShellError{Cmd: cmd, Output: out.String()}}
	}
	return removeLastNonemptyLine(removeCommandEcho(out.String(), cmd)), nil
}

// CmdStatusOutput sends cmd, then sends the status-test command, and
// returns the first command's exit status and output.
func (s *ShellSession) CmdStatusOutput(cmd string, timeout, internalTimeout time.Duration, printFunc func(string), safe bool) (int, string, error) {
	o, err := s.CmdOutput(cmd, timeout, internalTimeout, printFunc, safe)
	if err != nil {
		return 0, "", err
	}
	statusOut, err := s.CmdOutput(s.statusTestCommand, 10*time.Second, internalTimeout, printFunc, safe)
	if err != nil {
		return 0, "", &ShellStatusError{ShellError{Cmd: cmd, Output: o}}
	}

	// The first line consisting only of digits is the exit status; shells
	// sometimes echo extra banner text ahead of it.
	for _, line := range strings.Split(statusOut, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isDigits(line) {
			status, convErr := strconv.Atoi(line)
			if convErr == nil {
				return status, o, nil
			}
		}
	}
	return 0, "", &ShellStatusError{ShellError{Cmd: cmd, Output: o}}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CmdStatus sends cmd and returns only its exit status.
func (s *ShellSession) CmdStatus(cmd string, timeout, internalTimeout time.Duration, printFunc func(string), safe bool) (int, error) {
	status, _, err := s.CmdStatusOutput(cmd, timeout, internalTimeout, printFunc, safe)
	return status, err
}

// Cmd sends cmd and returns its output, returning a *ShellCmdError if its
// exit status is not in okStatus (defaults to just 0 when nil). If
// ignoreAllErrors is true, any Shell* error (timeout, process terminated,
// unknown status, or nonzero status) is swallowed instead of returned.
func (s *ShellSession) Cmd(cmd string, timeout, internalTimeout time.Duration, printFunc func(string), okStatus []int, ignoreAllErrors bool) (string, error) {
	if okStatus == nil {
		okStatus = []int{0}
	}
	status, out, err := s.CmdStatusOutput(cmd, timeout, internalTimeout, printFunc, false)
	if err != nil {
		if ignoreAllErrors {
			return "", nil
		}
		return "", err
	}
	for _, ok := range okStatus {
		if status == ok {
			return out, nil
		}
	}
	if ignoreAllErrors {
		return "", nil
	}
	return "", &ShellCmdError{ShellError{Cmd: cmd, Output: out}, status}
}

// GetCommandOutput is an alias for CmdOutput, kept for parity with the
// original API's naming.
func (s *ShellSession) GetCommandOutput(cmd string, timeout, internalTimeout time.Duration, printFunc func(string)) (string, error) {
	return s.CmdOutput(cmd, timeout, internalTimeout, printFunc, false)
}

// GetCommandStatusOutput is an alias for CmdStatusOutput.
func (s *ShellSession) GetCommandStatusOutput(cmd string, timeout, internalTimeout time.Duration, printFunc func(string)) (int, string, error) {
	return s.CmdStatusOutput(cmd, timeout, internalTimeout, printFunc, false)
}

// GetCommandStatus is an alias for CmdStatus.
func (s *ShellSession) GetCommandStatus(cmd string, timeout, internalTimeout time.Duration, printFunc func(string)) (int, error) {
	return s.CmdStatus(cmd, timeout, internalTimeout, printFunc, false)
}
