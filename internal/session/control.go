package session

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Control-pipe frame format (spec.md §4.2/§6): a fixed 10-byte zero-padded
// decimal length field, followed by exactly that many bytes of payload.
// Kept at 10 digits (rather than switched to a generic length-prefixed
// framing library) specifically to preserve wire compatibility with any
// existing Helper binaries, per spec.md §9's explicit resolution of this
// Open Question.

const ctrlLenWidth = 10

// MaxCtrlFrame is the largest payload the wire format accepts (spec.md §6:
// "length 0 or > 64 KiB are rejected").
const MaxCtrlFrame = 64 * 1024

// EncodeCtrlFrame renders payload as a 10-digit zero-padded decimal length
// followed by the payload bytes, ready to write to ctrlpipe.
func EncodeCtrlFrame(payload string) []byte {
	out := make([]byte, 0, ctrlLenWidth+len(payload))
	out = append(out, []byte(fmt.Sprintf("%0*d", ctrlLenWidth, len(payload)))...)
	out = append(out, payload...)
	return out
}

// ReadCtrlFrame reads one control frame (length prefix + payload) from r.
// Returns io.EOF if the stream ends cleanly before a length prefix begins.
// Frames with a zero or over-sized length are rejected: ReadCtrlFrame
// returns a non-nil error for them and reads no payload, since the stream
// cannot be resynchronized after a corrupt length field.
func ReadCtrlFrame(r *bufio.Reader) (string, error) {
	lenBuf := make([]byte, ctrlLenWidth)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return "", err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(lenBuf)))
	if err != nil || n <= 0 || n > MaxCtrlFrame {
		// Drain nothing further; the length field itself is corrupt, so
		// there is no reliable way to resynchronize. Treat as EOF-like.
		return "", fmt.Errorf("aexpect: invalid control frame length %q", lenBuf)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", err
	}
	return string(payload), nil
}

// ─── Helper bootstrap protocol (spec.md §6) ────────────────────────────────
//
// Line-delimited on the Helper's own stdin:
//
//	<id>
//	<echo-bool>
//	<comma-separated consumers>
//	<command>

// Bootstrap is the parameters a client sends a freshly-exec'd Helper over
// its stdin before the Helper has any other state to go on.
type Bootstrap struct {
	ID        string
	Echo      bool
	Consumers []string
	Command   string
}

// WriteBootstrap writes the bootstrap lines to w.
func WriteBootstrap(w io.Writer, b Bootstrap) error {
	_, err := fmt.Fprintf(w, "%s\n%t\n%s\n%s\n",
		b.ID, b.Echo, strings.Join(b.Consumers, ","), b.Command)
	return err
}

// ReadBootstrap reads the four bootstrap lines from r.
func ReadBootstrap(r io.Reader) (Bootstrap, error) {
	scanner := bufio.NewScanner(r)
	lines := make([]string, 0, 4)
	for len(lines) < 4 && scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return Bootstrap{}, err
	}
	if len(lines) < 4 {
		return Bootstrap{}, fmt.Errorf("aexpect: incomplete bootstrap (got %d of 4 lines)", len(lines))
	}
	var consumers []string
	if lines[2] != "" {
		consumers = strings.Split(lines[2], ",")
	}
	return Bootstrap{
		ID:        lines[0],
		Echo:      lines[1] == "true" || lines[1] == "True" || lines[1] == "1",
		Consumers: consumers,
		Command:   lines[3],
	}, nil
}

// ReadySentinel is the line the Helper writes to its own stdout once it
// holds the server lock and has created the session FIFOs, before it opens
// the consumer FIFOs and before the command is started; the client treats
// observing this string as the readiness signal to open its reader ends.
func ReadySentinel(id string) string {
	return fmt.Sprintf("Server %s ready", id)
}
