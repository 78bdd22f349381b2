package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"

	"serbridge/config"
	sberr "serbridge/internal/errors"
	"serbridge/internal/telnet"
	"serbridge/internal/transport"
	"serbridge/util"
)

// detachKey ends an attach session, same key as the telnet escape.
const detachKey = 0x1d // Ctrl-]

// AttachMode is the built-in console client: it dials a serving
// bridge, switches the local terminal to raw mode, and relays
// keystrokes and device output through the telnet layer.
type AttachMode struct {
	Address string

	// Dialer defaults to a plain TCP dialer when nil.  Override in
	// tests for deterministic failures.
	Dialer transport.Dialer
	// Stdin/Stdout default to the process terminal when nil.
	Stdin  *os.File
	Stdout io.Writer
}

func (m *AttachMode) stdin() *os.File {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *AttachMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

func (m *AttachMode) dialer() transport.Dialer {
	if m.Dialer != nil {
		return m.Dialer
	}
	return &transport.TCPDialer{Timeout: config.DefaultDialTimeout}
}

// Run attaches until the far end closes or the detach key is typed.
// It refuses to start when stdin is not a terminal; a raw-mode relay
// only makes sense on one.
func (m *AttachMode) Run(ctx context.Context) error {
	in := m.stdin()
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return sberr.ErrNotTerminal
	}

	dialer := m.dialer()
	defer dialer.Close()

	conn, err := dialer.Dial(ctx, "tcp", m.Address)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Debugf("attached to %s", conn.RemoteAddr())

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	defer term.Restore(fd, oldState) //nolint:errcheck

	out := m.stdout()
	fmt.Fprintf(out, "Attached to %s, detach with Ctrl-]\r\n", m.Address)

	err = util.BidirectionalCopy(ctx, telnet.NewConn(conn), conn, &escapeReader{r: in}, out)
	fmt.Fprintf(out, "\r\nDetached from %s\r\n", m.Address)
	return err
}

// escapeReader passes the terminal through until the detach key,
// which it turns into EOF so the copy loop winds the connection down.
type escapeReader struct {
	r    io.Reader
	done bool
}

func (e *escapeReader) Read(p []byte) (int, error) {
	if e.done {
		return 0, io.EOF
	}
	n, err := e.r.Read(p)
	if i := bytes.IndexByte(p[:n], detachKey); i >= 0 {
		e.done = true
		return i, io.EOF
	}
	return n, err
}
