// Package dispatch correlates commands with their replies.
//
// The protocol carries no message identifiers: the server answers
// commands strictly in the order they were sent, so the n-th reply
// belongs to the n-th pending callback.  Replies are buffered as they
// arrive from the network and matched only when the owner calls Poll,
// which keeps every result callback on the owner's goroutine.
package dispatch

import (
	"strings"
	"sync"

	tcerr "trimctl/internal/errors"
	"trimctl/internal/metrics"
	"trimctl/internal/wire"
	"trimctl/util"
)

// ErrorMarker prefixes a failed reply.  Matching ignores case; the
// message starts at a fixed offset of len(ErrorMarker)+1.
const ErrorMarker = "ERROR"

const errorOffset = len(ErrorMarker) + 1

// ResultFunc receives a command outcome.  On failure message is the
// server's error text.
type ResultFunc func(ok bool, message string)

// Sender writes one frame to an established connection.
type Sender interface {
	Send(frame string) error
}

type pending struct {
	seq uint64
	cb  ResultFunc
}

// Dispatcher holds the pending-callback queue and the inbound buffer.
type Dispatcher struct {
	logger  *util.Logger
	metrics *metrics.Collector

	sendMu sync.Mutex // orders enqueue+write across goroutines
	seq    uint64     // guarded by sendMu

	mu      sync.Mutex // guards queue, inbound and gen
	queue   []pending
	inbound []string
	gen     uint64 // bumped by Reset
}

// New returns an empty dispatcher.
func New(logger *util.Logger, m *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		logger:  util.OrQuiet(logger).Named("dispatch"),
		metrics: m,
	}
}

// Format builds a command frame: "<name> <args>", or just name when
// args is empty.
func Format(name, args string) string {
	if args == "" {
		return name
	}
	return name + " " + args
}

// Send queues cb and writes the command through s.
//
// Only caller errors are returned: ErrNotConnected from s, or
// ErrEmbeddedDelimiter when the frame would split on the wire.  In
// both cases cb is not queued.  A write failure is reported by the
// connection's own error path; cb stays queued until a reply arrives
// or Reset drops it.
func (d *Dispatcher) Send(s Sender, name, args string, cb ResultFunc) error {
	frame := Format(name, args)
	if err := wire.CheckFrame(frame); err != nil {
		return err
	}

	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	d.seq++
	seq := d.seq
	d.mu.Lock()
	d.queue = append(d.queue, pending{seq: seq, cb: cb})
	d.mu.Unlock()

	err := s.Send(frame)
	switch {
	case err == nil:
		d.metrics.CommandSent()
		return nil
	case tcerr.Is(err, tcerr.ErrNotConnected), tcerr.Is(err, wire.ErrEmbeddedDelimiter):
		d.unqueue(seq)
		return err
	default:
		d.logger.Verbose("%s: %v", name, err)
		return nil
	}
}

// unqueue removes the entry with the given sequence number.
func (d *Dispatcher) unqueue(seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.queue) - 1; i >= 0; i-- {
		if d.queue[i].seq == seq {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			return
		}
	}
}

// Deliver buffers a reply frame.  It is safe to call from any
// goroutine and never invokes callbacks.
func (d *Dispatcher) Deliver(frame string) {
	d.mu.Lock()
	d.inbound = append(d.inbound, frame)
	d.mu.Unlock()
}

// Poll matches every buffered reply to the oldest pending callback
// and invokes it.  Callbacks run on the caller's goroutine with no
// lock held.  A Reset from inside a callback discards the rest of the
// batch.  It returns the number of callbacks invoked.
func (d *Dispatcher) Poll() int {
	d.mu.Lock()
	frames := d.inbound
	d.inbound = nil
	gen := d.gen
	d.mu.Unlock()

	n := 0
	for i, frame := range frames {
		cb, ok, live := d.pop(gen)
		if !live {
			d.logger.Debug("discarded %d reply(s) after reset", len(frames)-i)
			break
		}
		if !ok {
			d.metrics.OrphanReply()
			d.logger.Error("no handler for reply %q", frame)
			continue
		}
		success, message := Decode(frame)
		d.metrics.ReplyDelivered(success)
		if cb != nil {
			cb(success, message)
		}
		n++
	}
	return n
}

// pop takes the oldest callback.  live is false once Reset has run
// since generation gen.
func (d *Dispatcher) pop(gen uint64) (cb ResultFunc, ok, live bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen {
		return nil, false, false
	}
	if len(d.queue) == 0 {
		return nil, false, true
	}
	p := d.queue[0]
	d.queue[0] = pending{}
	d.queue = d.queue[1:]
	return p.cb, true, true
}

// Reset drops every pending callback and buffered reply without
// invoking anything.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	dropped := len(d.queue)
	d.queue = nil
	d.inbound = nil
	d.gen++
	d.mu.Unlock()
	if dropped > 0 {
		d.logger.Verbose("dropped %d pending command(s)", dropped)
	}
}

// Pending returns the number of commands awaiting a reply.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Buffered returns the number of replies waiting for Poll.
func (d *Dispatcher) Buffered() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inbound)
}

// Decode splits a reply into its outcome and message.  A frame that
// starts with ErrorMarker in any case is a failure whose message
// begins after the marker and one separator byte.  A success message
// that happens to start with the marker is indistinguishable from an
// error; the protocol has no way to tell them apart.
func Decode(frame string) (ok bool, message string) {
	if len(frame) < len(ErrorMarker) || !strings.EqualFold(frame[:len(ErrorMarker)], ErrorMarker) {
		return true, frame
	}
	if len(frame) <= errorOffset {
		return false, ""
	}
	return false, frame[errorOffset:]
}
