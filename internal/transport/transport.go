// Package transport establishes the bridge's network legs: binding
// the listener a serving bridge accepts on, and dialing the remote
// end a forwarding bridge pushes to. Failures come back as structured
// NetworkErrors so callers can tell a retryable refusal from a dead
// configuration.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections. Implementations may hold
// long-lived resources; stateless dialers return nil from Close.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	Close() error
}
