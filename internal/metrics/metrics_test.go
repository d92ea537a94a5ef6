package metrics

import (
	"encoding/json"
	"testing"
)

func TestCollector_Connections(t *testing.T) {
	c := New()

	c.ConnectionOpened()
	c.ConnectionOpened()
	if c.ActiveConnections() != 2 {
		t.Errorf("active = %d, want 2", c.ActiveConnections())
	}

	c.ConnectionClosed()
	if c.ActiveConnections() != 1 {
		t.Errorf("active = %d, want 1", c.ActiveConnections())
	}
	if c.TotalConnections() != 2 {
		t.Errorf("total should remain 2, got %d", c.TotalConnections())
	}
}

func TestCollector_Frames(t *testing.T) {
	c := New()

	c.FrameSent(5)
	c.FrameSent(12)
	c.FrameReceived(9)

	snap := c.Snapshot()
	if c.FramesOut() != 2 || snap.BytesOut != 17 {
		t.Errorf("out = %d frames / %d bytes, want 2 / 17", c.FramesOut(), snap.BytesOut)
	}
	if c.FramesIn() != 1 || snap.BytesIn != 9 {
		t.Errorf("in = %d frames / %d bytes, want 1 / 9", c.FramesIn(), snap.BytesIn)
	}
}

// TestCollector_Replies verifies replies are split by outcome and
// orphans are counted separately.
func TestCollector_Replies(t *testing.T) {
	c := New()

	c.CommandSent()
	c.CommandSent()
	c.CommandSent()
	c.ReplyDelivered(true)
	c.ReplyDelivered(false)
	c.OrphanReply()

	snap := c.Snapshot()
	if c.CommandsSent() != 3 {
		t.Errorf("commands = %d, want 3", c.CommandsSent())
	}
	if snap.RepliesOK != 1 || snap.RepliesFailed != 1 {
		t.Errorf("replies ok/failed = %d/%d, want 1/1", snap.RepliesOK, snap.RepliesFailed)
	}
	if c.OrphanReplies() != 1 {
		t.Errorf("orphans = %d, want 1", c.OrphanReplies())
	}
}

func TestCollector_Discovery(t *testing.T) {
	c := New()
	c.ProbeSent()
	c.ServerFound()
	c.ServerFound()

	snap := c.Snapshot()
	if snap.ProbesSent != 1 {
		t.Errorf("probes = %d, want 1", snap.ProbesSent)
	}
	if c.ServersFound() != 2 {
		t.Errorf("found = %d, want 2", c.ServersFound())
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("first error")
	c.RecordError("second error")

	if c.ErrorCount() != 2 {
		t.Errorf("errors = %d, want 2", c.ErrorCount())
	}
	if msg := c.Snapshot().LastErrorMessage; msg != "second error" {
		t.Errorf("last error = %q", msg)
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.ConnectionOpened()
	c.FrameSent(42)

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.ConnectionsActive != 1 {
		t.Errorf("JSON active = %d", snap.ConnectionsActive)
	}
	if snap.BytesOut != 42 {
		t.Errorf("JSON bytes out = %d", snap.BytesOut)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.FrameReceived(100)
	c.FrameSent(100)
	c.CommandSent()
	c.ReplyDelivered(true)
	c.OrphanReply()
	c.ProbeSent()
	c.ServerFound()
	c.RecordError("test")

	if c.ActiveConnections() != 0 || c.FramesIn() != 0 || c.ErrorCount() != 0 {
		t.Error("nil collector should return 0")
	}
	if snap := c.Snapshot(); snap.ConnectionsActive != 0 {
		t.Error("nil snapshot should be zero")
	}
	if j := c.JSON(); j == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
