package metrics

import (
	"encoding/json"
	"testing"
)

func TestCollector_Sessions(t *testing.T) {
	c := New()

	c.SessionOpened()
	c.SessionOpened()
	if c.ActiveSessions() != 2 {
		t.Errorf("active = %d, want 2", c.ActiveSessions())
	}
	if c.TotalSessions() != 2 {
		t.Errorf("total = %d, want 2", c.TotalSessions())
	}

	c.SessionClosed()
	if c.ActiveSessions() != 1 {
		t.Errorf("active = %d, want 1", c.ActiveSessions())
	}
	if c.TotalSessions() != 2 {
		t.Errorf("total should remain 2, got %d", c.TotalSessions())
	}

	c.SessionRefused()
	if c.RefusedSessions() != 1 {
		t.Errorf("refused = %d, want 1", c.RefusedSessions())
	}
	if c.TotalSessions() != 2 {
		t.Errorf("refusals must not count as sessions, total = %d", c.TotalSessions())
	}
}

func TestCollector_Bytes(t *testing.T) {
	c := New()

	c.BytesToNet(1024)
	c.BytesToSerial(512)
	c.BytesToNet(100)

	if c.TotalBytesToNet() != 1124 {
		t.Errorf("bytes to net = %d, want 1124", c.TotalBytesToNet())
	}
	if c.TotalBytesToSerial() != 512 {
		t.Errorf("bytes to serial = %d, want 512", c.TotalBytesToSerial())
	}
}

func TestCollector_Reconnects(t *testing.T) {
	c := New()

	c.Reconnect()
	c.Reconnect()
	c.Reconnect()

	if c.Reconnects() != 3 {
		t.Errorf("reconnects = %d, want 3", c.Reconnects())
	}
}

func TestCollector_FlowStalls(t *testing.T) {
	c := New()

	c.FlowStall()
	c.FlowStall()

	if c.FlowStalls() != 2 {
		t.Errorf("stalls = %d, want 2", c.FlowStalls())
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("first error")
	c.RecordError("second error")

	if c.ErrorCount() != 2 {
		t.Errorf("errors = %d, want 2", c.ErrorCount())
	}
}

func TestCollector_Snapshot(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.BytesToNet(100)
	c.BytesToSerial(50)
	c.RecordError("test")

	snap := c.Snapshot()
	if snap.SessionsActive != 1 {
		t.Errorf("snap active = %d", snap.SessionsActive)
	}
	if snap.BytesToNet != 100 {
		t.Errorf("snap bytes to net = %d", snap.BytesToNet)
	}
	if snap.ErrorsTotal != 1 {
		t.Errorf("snap errors = %d", snap.ErrorsTotal)
	}
	if snap.LastErrorMessage != "test" {
		t.Errorf("snap error msg = %q", snap.LastErrorMessage)
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.BytesToSerial(42)

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.SessionsActive != 1 {
		t.Errorf("JSON active = %d", snap.SessionsActive)
	}
	if snap.BytesToSerial != 42 {
		t.Errorf("JSON bytes to serial = %d", snap.BytesToSerial)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.SessionOpened()
	c.SessionClosed()
	c.SessionRefused()
	c.BytesToNet(100)
	c.BytesToSerial(100)
	c.Reconnect()
	c.FlowStall()
	c.RecordError("test")

	if c.ActiveSessions() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.TotalBytesToNet() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.ErrorCount() != 0 {
		t.Error("nil collector should return 0")
	}

	snap := c.Snapshot()
	if snap.SessionsActive != 0 {
		t.Error("nil snapshot should be zero")
	}

	j := c.JSON()
	if j == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
