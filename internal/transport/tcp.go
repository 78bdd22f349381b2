package transport

import (
	"context"
	"net"
	"time"

	sberr "serbridge/internal/errors"
)

// TCPDialer establishes plain TCP connections.
type TCPDialer struct {
	Timeout time.Duration
}

// Dial connects to address over TCP. Failures are wrapped as
// NetworkErrors with the retryable flag set for refusals and
// timeouts.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, sberr.Wrap("dial", address, err)
	}
	return conn, nil
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }

// Listen binds the TCP address a serving bridge accepts clients on.
// A port already in use surfaces as a non-retryable NetworkError.
func Listen(address string) (net.Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, sberr.Wrap("listen", address, err)
	}
	return ln, nil
}
