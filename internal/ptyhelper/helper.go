// Package ptyhelper implements the Helper supervisor: the process that
// allocates a PTY, forks the controlled command onto it, and fans its
// output out to the on-disk rendezvous points described by internal/session.
//
// This is the Go analogue of the original implementation's server-side
// event loop — a single-process select loop over the PTY master and the
// two inbound FIFOs, grounded in the same raw unix.Poll-over-nonblocking-fds
// pattern used elsewhere in the retrieval pack for PTY plumbing.
package ptyhelper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/ianremillard/aexpect/internal/session"
)

// pollTimeoutMillis bounds a single unix.Poll call so the loop periodically
// re-checks whether the child has already been reaped even when no fd has
// become ready.
const pollTimeoutMillis = 250

const readBufSize = 32 * 1024

// Options bundles everything Run needs to bring a single Helper to life.
type Options struct {
	Dir       *session.Dir
	Bootstrap session.Bootstrap
	Logger    *slog.Logger
}

// Run executes the full Helper lifecycle and blocks until the controlled
// command has exited and every consumer has been drained: acquire the
// server lock, create the rendezvous FIFOs, signal readiness, wait for the
// client to finish attaching, allocate a PTY and fork the command, pump
// data until the PTY master reports EOF, then record the exit status and
// release the server lock. Run never removes the session directory — only
// the client does that, on Close.
func Run(opts Options) error {
	dir := opts.Dir
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	lockFile, ok, err := session.TryAcquireExclusive(dir.LockServerRunning)
	if err != nil {
		return fmt.Errorf("aexpect: acquire server lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("aexpect: session %s already has a running helper", dir.ID)
	}
	defer session.ReleaseExclusive(lockFile)

	if err := unix.Mkfifo(dir.InPipe, 0o600); err != nil && !os.IsExist(err) {
		return fmt.Errorf("aexpect: mkfifo inpipe: %w", err)
	}
	if err := unix.Mkfifo(dir.CtrlPipe, 0o600); err != nil && !os.IsExist(err) {
		return fmt.Errorf("aexpect: mkfifo ctrlpipe: %w", err)
	}
	for _, name := range opts.Bootstrap.Consumers {
		if err := unix.Mkfifo(dir.ReaderName(name), 0o600); err != nil && !os.IsExist(err) {
			return fmt.Errorf("aexpect: mkfifo outpipe-%s: %w", name, err)
		}
	}

	// The client waits for this line before opening its end of each
	// outpipe, so it must be emitted before the blocking opens below.
	fmt.Println(session.ReadySentinel(dir.ID))

	// Opening a FIFO for write blocks until some reader opens its other
	// end; the client opens all consumers in no guaranteed order, so
	// rendezvous with all of them concurrently rather than serially.
	outFds := make(map[string]int, len(opts.Bootstrap.Consumers))
	var outMu sync.Mutex
	g, _ := errgroup.WithContext(context.Background())
	for _, name := range opts.Bootstrap.Consumers {
		name := name
		g.Go(func() error {
			fd, err := unix.Open(dir.ReaderName(name), unix.O_WRONLY, 0)
			if err != nil {
				return fmt.Errorf("aexpect: open outpipe-%s: %w", name, err)
			}
			outMu.Lock()
			outFds[name] = fd
			outMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	outputFile, err := os.OpenFile(dir.Output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("aexpect: open output: %w", err)
	}
	defer outputFile.Close()

	inFd, err := unix.Open(dir.InPipe, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("aexpect: open inpipe: %w", err)
	}
	defer unix.Close(inFd)

	ctrlFd, err := unix.Open(dir.CtrlPipe, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("aexpect: open ctrlpipe: %w", err)
	}
	defer unix.Close(ctrlFd)

	// The client releases lock-client-starting only once it has opened
	// every consumer FIFO for reading; waiting here before forking the
	// command guarantees a fast-exiting child cannot race the client's
	// attach (spec'd race-on-close avoidance).
	if err := session.WaitForRelease(dir.LockClientStart); err != nil {
		log.Warn("wait for client-starting release failed", "err", err)
	}

	ptm, tty, err := pty.Open()
	if err != nil {
		return fmt.Errorf("aexpect: open pty: %w", err)
	}
	defer ptm.Close()

	if err := makeStandard(int(tty.Fd()), opts.Bootstrap.Echo); err != nil {
		tty.Close()
		return fmt.Errorf("aexpect: set termios: %w", err)
	}

	cmd := exec.Command("/bin/sh", "-c", opts.Bootstrap.Command)
	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}
	if err := cmd.Start(); err != nil {
		tty.Close()
		return fmt.Errorf("aexpect: start command: %w", err)
	}
	tty.Close()

	if err := dir.WritePID(cmd.Process.Pid); err != nil {
		log.Warn("write shell-pid failed", "err", err)
	}

	ptmFd := int(ptm.Fd())
	if err := syscall.SetNonblock(ptmFd, true); err != nil {
		return fmt.Errorf("aexpect: set pty nonblocking: %w", err)
	}

	// done is closed (never sent on) once the child has been reaped, so
	// runLoop and the code below can both observe it without racing over
	// who gets to consume a single channel value.
	var childErr error
	done := make(chan struct{})
	go func() {
		childErr = cmd.Wait()
		close(done)
	}()

	runLoop(ptmFd, inFd, ctrlFd, outFds, outputFile, done, log)

	// Block until the child is actually reaped even if runLoop returned
	// for a different reason (PTY master EOF usually arrives first); a
	// receive on an already-closed channel returns immediately.
	<-done

	status := 0
	if cmd.ProcessState != nil {
		status = cmd.ProcessState.ExitCode()
	} else if childErr != nil {
		status = -1
	}
	if err := dir.WriteStatus(status); err != nil {
		log.Warn("write status failed", "err", err)
	}

	for name, fd := range outFds {
		unix.Close(fd)
		delete(outFds, name)
	}

	return nil
}

// runLoop is the select-style fan-out: PTY master output goes to the
// output file and every live consumer FIFO; inpipe data goes to the PTY
// master; ctrlpipe frames are dispatched to handleControlFrame. It returns
// once the PTY master reports EOF/error or the child has been reaped,
// whichever happens first, after one final drain of the PTY master.
func runLoop(ptmFd, inFd, ctrlFd int, outFds map[string]int, outputFile *os.File, done <-chan struct{}, log *slog.Logger) {
	buf := make([]byte, readBufSize)
	var ctrlBuf []byte

	pollFds := []unix.PollFd{
		{Fd: int32(ptmFd), Events: unix.POLLIN},
		{Fd: int32(inFd), Events: unix.POLLIN},
		{Fd: int32(ctrlFd), Events: unix.POLLIN},
	}

	for {
		select {
		case <-done:
			drainPTY(ptmFd, outputFile, outFds)
			return
		default:
		}

		n, perr := unix.Poll(pollFds, pollTimeoutMillis)
		if perr != nil {
			if perr == unix.EINTR {
				continue
			}
			log.Error("poll failed", "err", perr)
			return
		}
		if n == 0 {
			continue
		}

		if pollFds[0].Revents&unix.POLLIN != 0 {
			nr, rerr := unix.Read(ptmFd, buf)
			if nr > 0 {
				fanOut(buf[:nr], outputFile, outFds, log)
			}
			if nr == 0 || (rerr != nil && rerr != unix.EAGAIN && rerr != unix.EINTR) {
				return
			}
		}
		if pollFds[0].Revents&(unix.POLLHUP|unix.POLLERR) != 0 {
			drainPTY(ptmFd, outputFile, outFds)
			return
		}

		if pollFds[1].Revents&unix.POLLIN != 0 {
			nr, _ := unix.Read(inFd, buf)
			if nr > 0 {
				if _, werr := unix.Write(ptmFd, buf[:nr]); werr != nil {
					log.Debug("write to pty failed", "err", werr)
				}
			}
			// nr == 0 here only means "no writer currently attached" — a
			// FIFO can gain a new writer later, unlike a pipe's terminal
			// EOF, so this never ends the loop on its own.
		}

		if pollFds[2].Revents&unix.POLLIN != 0 {
			nr, _ := unix.Read(ctrlFd, buf)
			if nr > 0 {
				ctrlBuf = append(ctrlBuf, buf[:nr]...)
				for {
					frame, rest, ok := tryExtractFrame(ctrlBuf)
					if !ok {
						break
					}
					ctrlBuf = rest
					handleControlFrame(ptmFd, frame, log)
				}
			}
		}
	}
}

func fanOut(chunk []byte, outputFile *os.File, outFds map[string]int, log *slog.Logger) {
	if _, err := outputFile.Write(chunk); err != nil {
		log.Warn("write to output file failed", "err", err)
	}
	for name, fd := range outFds {
		if _, err := unix.Write(fd, chunk); err != nil {
			// The consumer went away (e.g. a Tail thread detached); drop it
			// silently rather than failing the whole session over it.
			unix.Close(fd)
			delete(outFds, name)
		}
	}
}

// drainPTY does one last nonblocking sweep of the PTY master after the
// child has been reaped, to pick up any output flushed right before exit.
func drainPTY(ptmFd int, outputFile *os.File, outFds map[string]int) {
	buf := make([]byte, readBufSize)
	for {
		nr, err := unix.Read(ptmFd, buf)
		if nr <= 0 {
			return
		}
		if _, werr := outputFile.Write(buf[:nr]); werr != nil {
			return
		}
		for name, fd := range outFds {
			if _, werr := unix.Write(fd, buf[:nr]); werr != nil {
				unix.Close(fd)
				delete(outFds, name)
			}
		}
		if err != nil {
			return
		}
	}
}

// tryExtractFrame pulls one control frame (10-digit length prefix +
// payload) out of buf if a complete one is present, mirroring
// session.ReadCtrlFrame but over an accumulating byte slice instead of a
// blocking reader, since ctrlFd is read in nonblocking bursts.
func tryExtractFrame(buf []byte) (frame string, rest []byte, ok bool) {
	const hdr = 10
	if len(buf) < hdr {
		return "", buf, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(buf[:hdr])))
	if err != nil || n <= 0 || n > session.MaxCtrlFrame {
		// The length field itself is corrupt; there is no way to
		// resynchronize a byte stream like this, so drop everything
		// accumulated so far.
		return "", nil, false
	}
	if len(buf) < hdr+n {
		return "", buf, false
	}
	return string(buf[hdr : hdr+n]), buf[hdr+n:], true
}

// handleControlFrame dispatches one decoded control-pipe payload. Unknown
// frames are dropped, per the control-pipe contract.
func handleControlFrame(ptmFd int, frame string, log *slog.Logger) {
	fields := strings.Fields(frame)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "raw":
		if err := makeRaw(ptmFd); err != nil {
			log.Warn("set raw mode failed", "err", err)
		}
	case "cooked":
		echo := true
		if len(fields) > 1 {
			echo = fields[1] != "0"
		}
		if err := makeStandard(ptmFd, echo); err != nil {
			log.Warn("set cooked mode failed", "err", err)
		}
	case "winch":
		if len(fields) != 3 {
			return
		}
		rows, err1 := strconv.Atoi(fields[1])
		cols, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil {
			return
		}
		ws := &unix.Winsize{Row: uint16(rows), Col: uint16(cols)}
		if err := unix.IoctlSetWinsize(ptmFd, unix.TIOCSWINSZ, ws); err != nil {
			log.Warn("winch failed", "err", err)
		}
	}
}
