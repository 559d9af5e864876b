package session

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Locks are advisory whole-file locks taken with flock(2), the direct
// kernel-level equivalent of the original implementation's
// fcntl.lockf(fd, LOCK_EX): "lock-server-running" is held exclusively for
// the Helper's entire lifetime and its release is the canonical signal
// that the Helper has terminated (spec.md §3, §4.1).

// AcquireExclusive opens (creating if necessary) and exclusively locks the
// file at path, blocking until the lock is available. The returned *os.File
// must be released with ReleaseExclusive.
func AcquireExclusive(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// TryAcquireExclusive attempts a non-blocking exclusive lock. ok is false
// if the file is already locked by someone else.
func TryAcquireExclusive(path string) (f *os.File, ok bool, err error) {
	f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, false, nil
		}
		return nil, false, err
	}
	return f, true, nil
}

// ReleaseExclusive unlocks and closes f.
func ReleaseExclusive(f *os.File) {
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	f.Close()
}

// IsLocked reports whether path is currently held by an exclusive lock, by
// attempting (and immediately releasing) a non-blocking lock of our own.
// Mirrors aexpect.shared.is_file_locked. Returns false if the file cannot be
// opened at all (consistent with Spawn.is_alive() swallowing I/O errors).
func IsLocked(path string) bool {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return false
	}
	defer unix.Close(fd)

	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return true
		}
		return false
	}
	unix.Flock(fd, unix.LOCK_UN)
	return false
}

// WaitForRelease blocks until path's exclusive lock is free, then releases
// it immediately — i.e. it blocks until whoever is holding the lock exits.
// Mirrors aexpect.shared.wait_for_lock, used by Spawn.Status/Close to
// wait for the Helper to exit.
func WaitForRelease(path string) error {
	f, err := AcquireExclusive(path)
	if err != nil {
		return err
	}
	ReleaseExclusive(f)
	return nil
}

// WaitFor polls cond every step until it returns true or the deadline
// elapses, returning whether cond became true. Used by the Expect layer to
// distinguish "child terminated" from "unknown error" within a short grace
// window (spec.md §4.5), mirroring aexpect.utils.wait.wait_for.
func WaitFor(cond func() bool, timeout, firstWait, step time.Duration) bool {
	deadline := time.Now().Add(timeout)
	if firstWait > 0 {
		time.Sleep(firstWait)
	}
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return cond()
		}
		time.Sleep(step)
	}
}
