// Package metrics provides lock-free counters for a controller
// session: connections, frames, commands, replies and discovery.
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

// Collector tracks runtime metrics for a controller session.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	framesIn          atomic.Int64
	framesOut         atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	commandsSent      atomic.Int64
	repliesOK         atomic.Int64
	repliesFailed     atomic.Int64
	orphanReplies     atomic.Int64
	probesSent        atomic.Int64
	serversFound      atomic.Int64
	errorsTotal       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── Frame metrics ────────────────────────────────────────────────────

// FrameReceived records one inbound frame of n bytes.
func (c *Collector) FrameReceived(n int) {
	if c == nil {
		return
	}
	c.framesIn.Add(1)
	c.bytesIn.Add(int64(n))
}

// FrameSent records one outbound frame of n bytes.
func (c *Collector) FrameSent(n int) {
	if c == nil {
		return
	}
	c.framesOut.Add(1)
	c.bytesOut.Add(int64(n))
}

// FramesIn returns the number of frames received.
func (c *Collector) FramesIn() int64 {
	if c == nil {
		return 0
	}
	return c.framesIn.Load()
}

// FramesOut returns the number of frames sent.
func (c *Collector) FramesOut() int64 {
	if c == nil {
		return 0
	}
	return c.framesOut.Load()
}

// ── Command metrics ──────────────────────────────────────────────────

// CommandSent records a command queued for a reply.
func (c *Collector) CommandSent() {
	if c == nil {
		return
	}
	c.commandsSent.Add(1)
}

// ReplyDelivered records a reply handed to its callback.
func (c *Collector) ReplyDelivered(success bool) {
	if c == nil {
		return
	}
	if success {
		c.repliesOK.Add(1)
	} else {
		c.repliesFailed.Add(1)
	}
}

// OrphanReply records a reply that arrived with no pending command.
func (c *Collector) OrphanReply() {
	if c == nil {
		return
	}
	c.orphanReplies.Add(1)
}

// CommandsSent returns the number of commands sent.
func (c *Collector) CommandsSent() int64 {
	if c == nil {
		return 0
	}
	return c.commandsSent.Load()
}

// OrphanReplies returns the number of dropped replies.
func (c *Collector) OrphanReplies() int64 {
	if c == nil {
		return 0
	}
	return c.orphanReplies.Load()
}

// ── Discovery metrics ────────────────────────────────────────────────

// ProbeSent records a broadcast probe.
func (c *Collector) ProbeSent() {
	if c == nil {
		return
	}
	c.probesSent.Add(1)
}

// ServerFound records a valid discovery response.
func (c *Collector) ServerFound() {
	if c == nil {
		return
	}
	c.serversFound.Add(1)
}

// ServersFound returns the number of discovery responses seen.
func (c *Collector) ServersFound() int64 {
	if c == nil {
		return 0
	}
	return c.serversFound.Load()
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
	Uptime            string `json:"uptime"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	FramesIn          int64  `json:"frames_in"`
	FramesOut         int64  `json:"frames_out"`
	BytesIn           int64  `json:"bytes_in"`
	BytesOut          int64  `json:"bytes_out"`
	CommandsSent      int64  `json:"commands_sent"`
	RepliesOK         int64  `json:"replies_ok"`
	RepliesFailed     int64  `json:"replies_failed"`
	OrphanReplies     int64  `json:"orphan_replies"`
	ProbesSent        int64  `json:"probes_sent"`
	ServersFound      int64  `json:"servers_found"`
	ErrorsTotal       int64  `json:"errors_total"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		FramesIn:          c.framesIn.Load(),
		FramesOut:         c.framesOut.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		CommandsSent:      c.commandsSent.Load(),
		RepliesOK:         c.repliesOK.Load(),
		RepliesFailed:     c.repliesFailed.Load(),
		OrphanReplies:     c.orphanReplies.Load(),
		ProbesSent:        c.probesSent.Load(),
		ServersFound:      c.serversFound.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
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
