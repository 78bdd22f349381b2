package telnet

// conn.go - the client side of the exchange, used by attach mode to
// talk to a running bridge from a local terminal.

import (
	"io"
	"sync"
)

// Conn adapts a network connection to the client side of the telnet
// exchange: outgoing IAC bytes are doubled, incoming negotiation is
// answered and stripped from the data stream. It implements
// io.ReadWriter so generic relay loops can drive it.
type Conn struct {
	rw      io.ReadWriter
	session *Session
	mu      sync.Mutex // keeps writes atomic with negotiation replies
}

func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{rw: rw, session: NewSession()}
}

// Read fills p with decoded device bytes, transparently answering the
// bridge's negotiation requests. A read that yields only protocol
// bytes is retried, so Read never returns n == 0 with a nil error.
func (c *Conn) Read(p []byte) (int, error) {
	for {
		n, err := c.rw.Read(p)
		if n > 0 {
			data, replies := c.session.Feed(p[:n])
			if len(replies) > 0 {
				if _, werr := c.writeRaw(replies); werr != nil && err == nil {
					err = werr
				}
			}
			if len(data) > 0 || err != nil {
				// decoded bytes already sit in p's prefix
				return len(data), err
			}
			continue
		}
		if err != nil {
			return 0, err
		}
	}
}

// Write sends p with IAC bytes escaped. The returned count refers to
// p, not the escaped form.
func (c *Conn) Write(p []byte) (int, error) {
	if _, err := c.writeRaw(Escape(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *Conn) writeRaw(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rw.Write(p)
}
