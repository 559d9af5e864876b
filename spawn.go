// Package aexpect controls a child process through a PTY, supervised by a
// small detached Helper binary so the child keeps running and producing
// output even if this process disconnects and reattaches later.
//
// The capability hierarchy mirrors the original implementation's
// subclassing chain through Go embedding: Spawn gives raw process control,
// Tail adds a background line-callback reader, Expect adds pattern-based
// blocking reads, and ShellSession adds command/status plumbing on top of
// an interactive shell prompt.
package aexpect

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"

	"github.com/ianremillard/aexpect/internal/session"
)

// Spawn starts (or attaches to) a supervised child process and gives raw
// control over it: sending input, reading captured output, and querying
// or terminating the process.
type Spawn struct {
	id        string
	dir       *session.Dir
	command   string
	autoClose bool
	echo      bool
	linesep   string

	mu         sync.Mutex
	readers    []string
	readerFds  map[string]int
	closeHooks []func()
	closed     bool
}

// Options configures a new or attached Spawn-family handle. Zero value is
// a valid attach-only configuration once ID is set.
type Options struct {
	// Command, if non-empty, starts a new Helper running Command. If
	// empty, ID must name an already-running session to attach to.
	Command string
	// ID names the session. If empty when Command is set, a fresh random
	// ID is generated.
	ID string
	// AutoClose, if true, callers should defer Close(); Spawn itself never
	// finalizes on garbage collection (Go has no deterministic __del__).
	AutoClose bool
	// Echo controls the PTY's initial echo state. Only takes effect when
	// starting a new Helper.
	Echo bool
	// Linesep is appended to strings sent by Sendline. Defaults to "\n".
	Linesep string
}

// newSpawn is the shared constructor used by Spawn and every embedding
// type; readers lists the consumer FIFOs this handle (and anything built
// on top of it) needs opened.
func newSpawn(opts Options, readers []string) (*Spawn, error) {
	id := opts.ID
	if id == "" {
		id = session.GenerateID()
	}
	linesep := opts.Linesep
	if linesep == "" {
		linesep = "\n"
	}

	dir := session.NewDir(id)
	if err := dir.Init(); err != nil {
		return nil, fmt.Errorf("aexpect: init session directory: %w", err)
	}

	s := &Spawn{
		id:        id,
		dir:       dir,
		command:   opts.Command,
		autoClose: opts.AutoClose,
		echo:      opts.Echo,
		linesep:   linesep,
		readers:   readers,
		readerFds: make(map[string]int, len(readers)),
	}

	// Signal intent to attach before the Helper can possibly finish and
	// tear down, so a fast-exiting child cannot race us (spec'd race on
	// close avoidance, mirrored on the Helper side in internal/ptyhelper).
	clientStarting, err := session.AcquireExclusive(dir.LockClientStart)
	if err != nil {
		return nil, fmt.Errorf("aexpect: acquire client-starting lock: %w", err)
	}
	defer session.ReleaseExclusive(clientStarting)

	if opts.Command != "" {
		if err := startHelper(dir, opts.Command, opts.Echo, readers); err != nil {
			return nil, err
		}
	}

	if session.IsLocked(dir.LockServerRunning) {
		for _, reader := range readers {
			fd, err := unix.Open(dir.ReaderName(reader), unix.O_RDONLY, 0)
			if err == nil {
				s.readerFds[reader] = fd
			}
		}
	}

	return s, nil
}

// ID returns the opaque session identifier, usable later to attach.
func (s *Spawn) ID() string { return s.id }

// getFd returns the open reader fd for name, and whether it exists.
func (s *Spawn) getFd(name string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fd, ok := s.readerFds[name]
	return fd, ok
}

func (s *Spawn) closeReaderFds() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, fd := range s.readerFds {
		unix.Close(fd)
		delete(s.readerFds, name)
	}
}

// addCloseHook registers a function to run during Close, after the child
// has terminated but before reader fds and session files are cleaned up.
// Embedding types (Tail) use this to stop their own background work.
func (s *Spawn) addCloseHook(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeHooks = append(s.closeHooks, hook)
}

// Pid returns the PID of the supervised process (typically the shell
// running Command), or (0, false) if it cannot be determined.
func (s *Spawn) Pid() (int, bool) {
	return s.dir.ReadPID()
}

// Status blocks until the Helper has exited and returns the child's exit
// status, or (0, false) if it cannot be determined.
func (s *Spawn) Status() (int, bool) {
	session.WaitForRelease(s.dir.LockServerRunning)
	return s.dir.ReadStatus()
}

// Output returns the STDOUT/STDERR captured so far.
func (s *Spawn) Output() (string, bool) {
	return s.dir.ReadOutput()
}

// IsAlive reports whether the Helper (and therefore the child) is still
// running.
func (s *Spawn) IsAlive() bool {
	return session.IsLocked(s.dir.LockServerRunning)
}

// IsDefunct reports whether the supervised process is a zombie.
func (s *Spawn) IsDefunct() bool {
	pid, ok := s.Pid()
	if !ok {
		return false
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := proc.Status()
	if err != nil {
		return false
	}
	for _, st := range status {
		if st == "Z" || strings.EqualFold(st, "zombie") {
			return true
		}
	}
	return false
}

// Kill sends sig to the process tree rooted at the supervised process, if
// it is alive. Defaults to SIGKILL behavior when sig is 0.
func (s *Spawn) Kill(sig syscall.Signal) {
	if sig == 0 {
		sig = syscall.SIGKILL
	}
	if !s.IsAlive() {
		return
	}
	pid, ok := s.Pid()
	if !ok {
		return
	}
	killTree(pid, sig)
}

// killTree signals pid and every descendant it can find, deepest first,
// via gopsutil's process-tree walk (the Go analogue of the original's
// `ps`-based kill_process_tree).
func killTree(pid int, sig syscall.Signal) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		// The process may already be gone; still try to signal the pid
		// directly in case gopsutil just failed to read /proc in time.
		syscall.Kill(pid, sig)
		return
	}
	children, _ := proc.Children()
	for _, child := range children {
		killTree(int(child.Pid), sig)
	}
	syscall.Kill(pid, sig)
}

// Close kills the process if still alive, waits for the Helper to exit,
// runs any registered close hooks, closes reader fds, and removes the
// session directory (unless AEXPECT_DEBUG is set). Close is idempotent.
func (s *Spawn) Close(sig syscall.Signal) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	hooks := append([]func(){}, s.closeHooks...)
	s.mu.Unlock()

	s.Kill(sig)
	session.WaitForRelease(s.dir.LockServerRunning)

	for _, hook := range hooks {
		hook()
	}

	s.closeReaderFds()
	s.dir.Remove()
}

// SetLinesep changes the line separator appended by Sendline.
func (s *Spawn) SetLinesep(linesep string) { s.linesep = linesep }

// Send writes cont to the child's stdin.
func (s *Spawn) Send(cont string) {
	fd, err := unix.Open(s.dir.InPipe, unix.O_RDWR, 0)
	if err != nil {
		return
	}
	defer unix.Close(fd)
	unix.Write(fd, []byte(cont))
}

// Sendline writes cont followed by the configured line separator.
func (s *Spawn) Sendline(cont string) {
	s.Send(cont + s.linesep)
}

// SendControl writes a control frame to the Helper's control pipe (e.g.
// "raw", "cooked 0", "winch 24 80").
func (s *Spawn) SendControl(control string) {
	fd, err := unix.Open(s.dir.CtrlPipe, unix.O_RDWR, 0)
	if err != nil {
		return
	}
	defer unix.Close(fd)
	unix.Write(fd, session.EncodeCtrlFrame(control))
}

// startHelper execs the aexpect-helper binary, hands it the bootstrap
// protocol over its stdin, and blocks until it reports readiness.
func startHelper(dir *session.Dir, command string, echo bool, readers []string) error {
	helperPath, err := findHelperBinary()
	if err != nil {
		return err
	}

	cmd := exec.Command(helperPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("aexpect: helper stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("aexpect: helper stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("aexpect: start helper: %w", err)
	}

	if err := session.WriteBootstrap(stdin, session.Bootstrap{
		ID:        dir.ID,
		Echo:      echo,
		Consumers: readers,
		Command:   command,
	}); err != nil {
		return fmt.Errorf("aexpect: write helper bootstrap: %w", err)
	}
	stdin.Close()

	return waitForReady(stdout, dir.ID)
}

// waitForReady blocks until the Helper's own readiness sentinel appears
// on its stdout, matching the original implementation's tight
// readline-until-match loop.
func waitForReady(stdout io.Reader, id string) error {
	sentinel := session.ReadySentinel(id)
	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadString('\n')
		if strings.Contains(line, sentinel) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("aexpect: helper exited before signaling readiness: %w", err)
		}
	}
}

// findHelperBinary locates aexpect-helper alongside this program's own
// executable, falling back to $PATH lookup.
func findHelperBinary() (string, error) {
	const helperName = "aexpect-helper"

	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), helperName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(helperName); err == nil {
		return path, nil
	}
	return "", &CommandNotFoundError{Cmd: helperName, Paths: strings.Split(os.Getenv("PATH"), string(os.PathListSeparator))}
}
