// Package session owns the on-disk rendezvous between an aexpect client and
// its Helper: the session directory layout, the well-known filenames, ID
// generation, advisory locking, and the control-pipe wire format.
//
// None of this is exported outside the module: the root aexpect package and
// the Helper binary are the only consumers.
package session

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// idAlphabet mirrors the teacher's own short-ID alphabet (lowercase
// letters and digits) and the original Python data_factory module, which
// draws from ascii_letters + digits. We keep it simple and URL/filename
// safe.
const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// idLength is the fixed width of a generated session ID (spec: "opaque
// 8-character id string").
const idLength = 8

// GenerateID returns a random 8-character opaque session identifier.
func GenerateID() string {
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read on Linux only fails if the kernel CSPRNG itself
		// is broken; there is nothing sensible to fall back to.
		panic("aexpect: crypto/rand unavailable: " + err.Error())
	}
	out := make([]byte, idLength)
	for i, c := range b {
		out[i] = idAlphabet[int(c)%len(idAlphabet)]
	}
	return string(out)
}

// BaseDir is the root directory under which every session directory is
// created. It defaults to TMPDIR, falling back to /tmp, matching the
// original aexpect.shared.BASE_DIR.
func BaseDir() string {
	if v := os.Getenv("TMPDIR"); v != "" {
		return v
	}
	return "/tmp"
}

// DebugMode reports whether AEXPECT_DEBUG is set, which suppresses
// directory removal on Close so a session can be inspected post-mortem.
func DebugMode() bool {
	_, ok := os.LookupEnv("AEXPECT_DEBUG")
	return ok
}

// Dir is the session directory and its well-known file paths, spec.md
// §4.1's table made concrete.
type Dir struct {
	ID   string
	Path string

	ShellPID          string
	Status            string
	Output            string
	InPipe            string
	CtrlPipe          string
	LockServerRunning string
	LockClientStart   string
	ServerLog         string
}

// NewDir computes (but does not create) the filenames for session id under
// base (base is BaseDir() joined with "aexpect_<id>").
func NewDir(id string) *Dir {
	path := filepath.Join(BaseDir(), "aexpect_"+id)
	return &Dir{
		ID:                id,
		Path:              path,
		ShellPID:          filepath.Join(path, "shell-pid"),
		Status:            filepath.Join(path, "status"),
		Output:            filepath.Join(path, "output"),
		InPipe:            filepath.Join(path, "inpipe"),
		CtrlPipe:          filepath.Join(path, "ctrlpipe"),
		LockServerRunning: filepath.Join(path, "lock-server-running"),
		LockClientStart:   filepath.Join(path, "lock-client-starting"),
		ServerLog:         filepath.Join(path, "server-log"),
	}
}

// Init creates the session directory if it does not already exist.
func (d *Dir) Init() error {
	return os.MkdirAll(d.Path, 0o755)
}

// ReaderName returns the well-known FIFO filename for a given consumer
// ("tail", "expect", ...).
func (d *Dir) ReaderName(reader string) string {
	return filepath.Join(d.Path, "outpipe-"+reader)
}

// Remove deletes the whole session directory, unless AEXPECT_DEBUG is set.
func (d *Dir) Remove() {
	if DebugMode() {
		return
	}
	os.RemoveAll(d.Path)
}

// ReadPID reads the shell-pid file; returns (0, false) if unavailable or
// unparsable, matching Spawn.get_pid()'s "swallow I/O errors" policy.
func (d *Dir) ReadPID() (int, bool) {
	return readIntFile(d.ShellPID)
}

// ReadStatus reads the status file; returns (0, false) if unavailable or
// unparsable, matching Spawn.get_status()'s "None on error" policy.
func (d *Dir) ReadStatus() (int, bool) {
	return readIntFile(d.Status)
}

func readIntFile(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(string(data), "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

// WritePID writes the child PID, decimal, no trailing newline — matching
// the original server's os.write(fd, "%d" % pid) exactly.
func (d *Dir) WritePID(pid int) error {
	return os.WriteFile(d.ShellPID, []byte(fmt.Sprintf("%d", pid)), 0o644)
}

// WriteStatus writes the child's exit status, decimal, no trailing newline.
func (d *Dir) WriteStatus(status int) error {
	return os.WriteFile(d.Status, []byte(fmt.Sprintf("%d", status)), 0o644)
}

// ReadOutput returns the full contents of the output file, or ("", false)
// on any I/O error (matching Spawn.get_output()'s None-on-IOError policy).
func (d *Dir) ReadOutput() (string, bool) {
	data, err := os.ReadFile(d.Output)
	if err != nil {
		return "", false
	}
	return string(data), true
}
