// Package core is the orchestration layer.  It composes the serial
// endpoint, the transport, and the bridge engine into complete
// operational modes and provides a builder that selects the right
// mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport / serial  →  telnet  →  bridge  →  core  →  cmd (CLI)
//
// The builder in this package is the single dispatch point: every way
// of running serbridge is one of the three Mode implementations here.
package core

import "context"

// Mode represents a complete operational mode of serbridge (serve,
// forward, or attach).  Each mode owns its full lifecycle from
// opening the device to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
