package aexpect

import "fmt"

// CommandNotFoundError means the aexpect-helper binary could not be found
// either alongside this program's own executable or anywhere on PATH.
type CommandNotFoundError struct {
	Cmd   string
	Paths []string
}

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("command %q could not be found in any of the PATH dirs: %v", e.Cmd, e.Paths)
}

// ExpectError is returned by the Expect layer's read_until_* family when
// a read loop ends without a successful match. ExpectTimeoutError and
// ExpectProcessTerminatedError refine it for the two known causes; a bare
// ExpectError means neither applied, which should not normally happen.
type ExpectError struct {
	Patterns []string
	Output   string
}

func (e *ExpectError) patternStr() string {
	if len(e.Patterns) == 1 {
		return fmt.Sprintf("%q", e.Patterns[0])
	}
	return fmt.Sprintf("%q", e.Patterns)
}

func (e *ExpectError) Error() string {
	return fmt.Sprintf("unknown error occurred while looking for %s    (output: %q)", e.patternStr(), e.Output)
}

// ExpectTimeoutError means the configured timeout elapsed before any
// pattern matched.
type ExpectTimeoutError struct{ ExpectError }

func (e *ExpectTimeoutError) Error() string {
	return fmt.Sprintf("timeout expired while looking for %s    (output: %q)", e.patternStr(), e.Output)
}

// ExpectProcessTerminatedError means the child process exited before a
// pattern matched.
type ExpectProcessTerminatedError struct {
	ExpectError
	Status int
}

func (e *ExpectProcessTerminatedError) Error() string {
	return fmt.Sprintf("process terminated while looking for %s    (status: %d,    output: %q)",
		e.patternStr(), e.Status, e.Output)
}

// ShellError is the base error for ShellSession's command-running methods.
type ShellError struct {
	Cmd    string
	Output string
}

func (e *ShellError) Error() string {
	return fmt.Sprintf("error running command %q    (output: %q)", e.Cmd, e.Output)
}

// ShellTimeoutError means the shell's prompt did not reappear before the
// configured timeout elapsed.
type ShellTimeoutError struct{ ShellError }

func (e *ShellTimeoutError) Error() string {
	return fmt.Sprintf("timeout expired while waiting for shell command to complete: %q    (output: %q)", e.Cmd, e.Output)
}

// ShellProcessTerminatedError means the shell process itself exited while
// a command was still running.
type ShellProcessTerminatedError struct {
	ShellError
	Status int
}

func (e *ShellProcessTerminatedError) Error() string {
	return fmt.Sprintf("shell process terminated while running command %q    (status: %d,    output: %q)",
		e.Cmd, e.Status, e.Output)
}

// ShellCmdError means the command ran to completion but its exit status
// was not in the caller's accepted set.
type ShellCmdError struct {
	ShellError
	Status int
}

func (e *ShellCmdError) Error() string {
	return fmt.Sprintf("command %q failed    (status: %d,    output: %q)", e.Cmd, e.Status, e.Output)
}

// ShellStatusError means the command's own output was retrieved but its
// exit status could not be determined from the status-test command's
// output.
type ShellStatusError struct{ ShellError }

func (e *ShellStatusError) Error() string {
	return fmt.Sprintf("could not get exit status of command %q    (output: %q)", e.Cmd, e.Output)
}
