package ptyhelper

import "golang.org/x/sys/unix"

// makeRaw and makeStandard translate aexpect.shared's makeraw/makestandard
// bit-for-bit from the Python termios attribute-array form to the
// unix.Termios struct fields, grounded on the same ioctl pattern used by
// other PTY supervisors in the pack (IoctlGetTermios/IoctlSetTermios with
// TCGETS/TCSETS).

// makeRaw puts the PTY slave fd into a fully raw mode: no input/output
// translation, no canonical line discipline, no signal generation, no echo.
func makeRaw(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

// makeStandard applies the "standard" (cooked, optionally echoing) mode:
// disable a few specific input translations and all output post-processing
// but otherwise leave canonical-mode line editing and signal generation
// alone; set ECHO per echo.
func makeStandard(fd int, echo bool) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.INLCR
	t.Iflag &^= unix.ICRNL
	t.Iflag &^= unix.IGNCR
	t.Oflag &^= unix.OPOST
	if echo {
		t.Lflag |= unix.ECHO
	} else {
		t.Lflag &^= unix.ECHO
	}
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}
