// Package metrics provides lightweight, lock-free counters for
// tracking runtime statistics of a bridge.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for a bridge.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	sessionsActive  atomic.Int64
	sessionsTotal   atomic.Int64
	sessionsRefused atomic.Int64
	bytesToNet      atomic.Int64
	bytesToSerial   atomic.Int64
	reconnects      atomic.Int64
	flowStalls      atomic.Int64
	errorsTotal     atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// SessionRefused records a connection turned away because a session
// was already active.
func (c *Collector) SessionRefused() {
	if c == nil {
		return
	}
	c.sessionsRefused.Add(1)
}

// ActiveSessions returns the current number of open sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// RefusedSessions returns the number of refused connections.
func (c *Collector) RefusedSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsRefused.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesToNet records n payload bytes forwarded device → network.
func (c *Collector) BytesToNet(n int64) {
	if c == nil {
		return
	}
	c.bytesToNet.Add(n)
}

// BytesToSerial records n payload bytes forwarded network → device.
func (c *Collector) BytesToSerial(n int64) {
	if c == nil {
		return
	}
	c.bytesToSerial.Add(n)
}

// TotalBytesToNet returns total payload bytes sent toward the network.
func (c *Collector) TotalBytesToNet() int64 {
	if c == nil {
		return 0
	}
	return c.bytesToNet.Load()
}

// TotalBytesToSerial returns total payload bytes sent toward the device.
func (c *Collector) TotalBytesToSerial() int64 {
	if c == nil {
		return 0
	}
	return c.bytesToSerial.Load()
}

// ── Flow metrics ─────────────────────────────────────────────────────

// Reconnect records a re-established outbound connection.
func (c *Collector) Reconnect() {
	if c == nil {
		return
	}
	c.reconnects.Add(1)
}

// Reconnects returns the total reconnection count.
func (c *Collector) Reconnects() int64 {
	if c == nil {
		return 0
	}
	return c.reconnects.Load()
}

// FlowStall records the device reader being paused at the high-water
// mark.
func (c *Collector) FlowStall() {
	if c == nil {
		return
	}
	c.flowStalls.Add(1)
}

// FlowStalls returns the total number of high-water pauses.
func (c *Collector) FlowStalls() int64 {
	if c == nil {
		return 0
	}
	return c.flowStalls.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	SessionsRefused  int64  `json:"sessions_refused"`
	BytesToNet       int64  `json:"bytes_to_net"`
	BytesToSerial    int64  `json:"bytes_to_serial"`
	Reconnects       int64  `json:"reconnects"`
	FlowStalls       int64  `json:"flow_stalls"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:          time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive:  c.sessionsActive.Load(),
		SessionsTotal:   c.sessionsTotal.Load(),
		SessionsRefused: c.sessionsRefused.Load(),
		BytesToNet:      c.bytesToNet.Load(),
		BytesToSerial:   c.bytesToSerial.Load(),
		Reconnects:      c.reconnects.Load(),
		FlowStalls:      c.flowStalls.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
