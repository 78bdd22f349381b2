// Package errors provides domain-specific error types for serbridge.
//
// These types carry structured context (operation, device path, failure
// class) that helps callers decide how to handle failures and provides
// better diagnostics than plain string wrapping.
package errors

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrClosed      = errors.New("endpoint is closed")
	ErrBridgeDown  = errors.New("bridge is not running")
	ErrNotTerminal = errors.New("stdin is not a terminal")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "dial", "listen", "accept", "write", "read"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SerialCode classifies serial-port failures.
type SerialCode int

const (
	SerialUnknown      SerialCode = iota
	SerialNotFound                // no such device
	SerialBusy                    // device opened by another process
	SerialPermission              // insufficient rights on the device node
	SerialInvalid                 // unsupported mode (baud, parity, ...)
	SerialDisconnected            // device vanished mid-session
)

func (c SerialCode) String() string {
	switch c {
	case SerialNotFound:
		return "not found"
	case SerialBusy:
		return "busy"
	case SerialPermission:
		return "permission denied"
	case SerialInvalid:
		return "invalid mode"
	case SerialDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// SerialError represents a serial-port failure with device context.
// Every SerialError that escapes the endpoint is fatal to the session;
// transient conditions (no data ready) are absorbed at the poll level
// and never surface as errors.
type SerialError struct {
	Op   string // "open", "read", "write", "close"
	Path string
	Code SerialCode
	Err  error
}

func (e *SerialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("serial %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("serial %s %s: %s", e.Op, e.Path, e.Code)
}

func (e *SerialError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: %s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSerial creates a SerialError.
func WrapSerial(op, path string, code SerialCode, err error) *SerialError {
	return &SerialError{Op: op, Path: path, Code: code, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// SerialCodeOf extracts the failure class from err, or SerialUnknown
// when err carries no SerialError.
func SerialCodeOf(err error) SerialCode {
	var se *SerialError
	if errors.As(err, &se) {
		return se.Code
	}
	return SerialUnknown
}

// classifyRetryable inspects standard library error types. Refusals,
// resets and timeouts are transient from a bridge's point of view:
// the far end may simply not be up yet.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return true
		}
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	// DNS errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use serbridge/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
