package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultPort is the TCP port the bridge listens on.
	DefaultPort = 8722

	// DefaultHost is the serve-mode bind address; empty binds every
	// interface.
	DefaultHost = ""

	// DefaultBaud applies when the device spec carries no baud field.
	DefaultBaud = 115200

	// DefaultDataBits, DefaultParity, and DefaultStopBits form the
	// conventional 8N1 line discipline.
	DefaultDataBits = 8
	DefaultParity   = 'N'
	DefaultStopBits = 1

	// DefaultBufferSize is the per-read chunk size for both the serial
	// port and the network socket.
	DefaultBufferSize = 512

	// MinBufferSize is the floor for -b; smaller values are clamped
	// with a warning.
	MinBufferSize = 512

	// DefaultHighWater pauses reads from a source once this many bytes
	// are pending toward the opposite endpoint.
	DefaultHighWater = 8 * 1024

	// DefaultLowWater resumes paused reads once the pending backlog
	// drains below it.
	DefaultLowWater = 2 * 1024

	// DefaultPollInterval bounds each blocking serial read so the
	// reader notices shutdown promptly.
	DefaultPollInterval = 20 * time.Millisecond

	// DefaultAcceptRetryDelay spaces out accept retries after a
	// transient listener error.
	DefaultAcceptRetryDelay = 250 * time.Millisecond

	// DefaultDialTimeout is the forward/attach mode connection timeout.
	DefaultDialTimeout = 10 * time.Second

	// DefaultMaxReconnectAttempts is how many times forward mode
	// redials after a network drop; 0 means retry forever.
	DefaultMaxReconnectAttempts = 0

	// DefaultReconnectBackoff seeds the exponential backoff between
	// redial attempts; DefaultMaxReconnectBackoff caps it.
	DefaultReconnectBackoff    = 500 * time.Millisecond
	DefaultMaxReconnectBackoff = 30 * time.Second

	// DefaultLogMaxSize is the rotation threshold for --log-file, in
	// MiB.  DefaultLogMaxBackups bounds how many rotated files stay.
	DefaultLogMaxSize    = 10
	DefaultLogMaxBackups = 3
)
