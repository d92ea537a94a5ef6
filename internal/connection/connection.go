// Package connection owns the stream socket of a controller session.
//
// A Conn moves through Idle → Connecting → AwaitingHandshake →
// Established and ends in Closed.  Connect returns at once; dialing,
// the handshake and the read loop run on a goroutine that reports
// back through callbacks.  A Conn is single-use: reconnecting means
// creating a new one.
package connection

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	tcerr "trimctl/internal/errors"
	"trimctl/internal/metrics"
	"trimctl/internal/session"
	"trimctl/internal/transport"
	"trimctl/internal/wire"
	"trimctl/util"
)

// HandshakeFunc receives the outcome of Connect: the server identity
// on success or an error message on failure.
type HandshakeFunc func(ok bool, message string)

// Config configures a [Conn].
type Config struct {
	Dialer  transport.Dialer
	Port    int
	Hello   string // client hello, without delimiter
	Token   string // expected server hello token
	Logger  *util.Logger
	Metrics *metrics.Collector

	// OnReply receives every non-blank frame after the handshake.
	OnReply func(frame string)

	// OnClosed runs once when the connection ends for any reason
	// other than a local Close.  err is nil for a graceful close by
	// the server.
	OnClosed func(err error)
}

// Conn is one stream connection to a server.
type Conn struct {
	cfg    Config
	logger *util.Logger
	state  atomic.Int32

	mu          sync.Mutex // guards the fields below
	addr        string
	nc          net.Conn
	cancel      context.CancelFunc
	onHandshake HandshakeFunc

	wmu       sync.Mutex // serialises frame writes
	closeOnce sync.Once
}

// New returns an idle connection.
func New(cfg Config) *Conn {
	if cfg.Dialer == nil {
		cfg.Dialer = &transport.TCPDialer{}
	}
	return &Conn{
		cfg:    cfg,
		logger: util.OrQuiet(cfg.Logger).Named("conn"),
	}
}

// State returns the current state.
func (c *Conn) State() session.Status {
	return session.Status(c.state.Load())
}

// Addr returns the host:port being connected to.
func (c *Conn) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// Connect starts connecting to host on the configured port.  It fails
// with ErrAlreadyConnected (or ErrClosed) unless the connection is
// Idle; everything after that is reported through onHandshake.
func (c *Conn) Connect(host string, onHandshake HandshakeFunc) error {
	if !c.state.CompareAndSwap(int32(session.Idle), int32(session.Connecting)) {
		if c.State() == session.Closed {
			return tcerr.ErrClosed
		}
		return tcerr.ErrAlreadyConnected
	}

	ctx, cancel := context.WithCancel(context.Background())
	addr := util.FormatAddr(host, c.cfg.Port)

	c.mu.Lock()
	c.addr = addr
	c.cancel = cancel
	c.onHandshake = onHandshake
	c.mu.Unlock()

	c.logger.Verbose("connecting to %s", addr)
	go c.run(ctx, addr)
	return nil
}

// Send writes one frame.  It fails with ErrNotConnected unless the
// handshake has completed.  A write error closes the connection and
// is reported through OnClosed as well as returned.
func (c *Conn) Send(frame string) error {
	if c.State() != session.Established {
		return tcerr.ErrNotConnected
	}
	if err := wire.CheckFrame(frame); err != nil {
		return err
	}
	if err := c.write(frame); err != nil {
		if c.State() == session.Closed || tcerr.IsClosed(err) {
			return tcerr.ErrClosed
		}
		nerr := tcerr.Wrap("write", c.Addr(), err)
		c.fail(nerr)
		return nerr
	}
	return nil
}

// Close closes the socket.  It is safe to call more than once and
// from any goroutine.  No callbacks run after a local Close.
func (c *Conn) Close() {
	if c.shutdown() {
		c.takeHandshake()
		c.logger.Verbose("closed")
	}
}

// ── connection goroutine ─────────────────────────────────────────────

func (c *Conn) run(ctx context.Context, addr string) {
	nc, err := c.cfg.Dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		if c.State() != session.Closed {
			c.fail(tcerr.Wrap("dial", addr, err))
		}
		return
	}

	c.mu.Lock()
	if c.State() == session.Closed {
		c.mu.Unlock()
		nc.Close()
		return
	}
	c.nc = nc
	c.mu.Unlock()
	c.cfg.Metrics.ConnectionOpened()

	c.logger.Debug("connected %s -> %s", nc.LocalAddr(), nc.RemoteAddr())

	if err := c.write(c.cfg.Hello); err != nil {
		if c.State() != session.Closed && !tcerr.IsClosed(err) {
			c.fail(tcerr.Wrap("write", addr, err))
		}
		return
	}
	if !c.state.CompareAndSwap(int32(session.Connecting), int32(session.AwaitingHandshake)) {
		return
	}

	c.readLoop(nc)
}

// readLoop reads frames until the socket fails or is closed.
func (c *Conn) readLoop(nc net.Conn) {
	r := wire.NewReader(nc)
	for {
		frame, err := r.ReadFrame()
		if err == nil || frame != "" {
			if !c.handleFrame(frame) {
				return
			}
		}
		if err != nil {
			c.readFailed(err)
			return
		}
	}
}

// handleFrame processes one inbound frame and reports whether the
// loop should continue.
func (c *Conn) handleFrame(frame string) bool {
	c.cfg.Metrics.FrameReceived(len(frame) + 1)
	c.logger.Debug("<- %q", frame)

	switch c.State() {
	case session.AwaitingHandshake:
		if !strings.HasPrefix(frame, c.cfg.Token) {
			c.fail(tcerr.Handshake("invalid hello from server", frame))
			return false
		}
		if !c.state.CompareAndSwap(int32(session.AwaitingHandshake), int32(session.Established)) {
			return false
		}
		identity := strings.TrimSpace(frame[len(c.cfg.Token):])
		c.logger.Verbose("established with %q", identity)
		if cb := c.takeHandshake(); cb != nil {
			cb(true, identity)
		} else {
			c.logger.Info("server hello: %s", frame)
		}
		return true

	case session.Established:
		if wire.IsBlank(frame) {
			c.fail(nil)
			return false
		}
		if c.cfg.OnReply != nil {
			c.cfg.OnReply(frame)
		}
		return true

	default:
		return false
	}
}

// readFailed classifies a read error.  Errors caused by a local Close
// are dropped.
func (c *Conn) readFailed(err error) {
	state := c.State()
	switch {
	case state == session.Closed || tcerr.IsClosed(err):
		return
	case tcerr.IsEOF(err) && state == session.Established:
		c.fail(nil)
	case tcerr.IsEOF(err):
		c.fail(tcerr.Handshake("connection closed before server hello", ""))
	default:
		c.fail(tcerr.Wrap("read", c.Addr(), err))
	}
}

// ── teardown ─────────────────────────────────────────────────────────

// fail closes the connection on behalf of the network and reports
// why: a pending handshake callback receives the error, otherwise it
// is logged.  err is nil for a graceful server close.
func (c *Conn) fail(err error) {
	if !c.shutdown() {
		return
	}
	cb := c.takeHandshake()

	switch {
	case err == nil:
		c.logger.Verbose("server disconnected")
	case cb == nil:
		c.logger.Error("%v", err)
	default:
		c.logger.Verbose("connect failed: %v", err)
	}
	if err != nil {
		c.cfg.Metrics.RecordError(err.Error())
	}

	if c.cfg.OnClosed != nil {
		c.cfg.OnClosed(err)
	}
	if cb != nil {
		msg := "server closed the connection"
		if err != nil {
			msg = err.Error()
		}
		cb(false, msg)
	}
}

// shutdown moves to Closed and releases the socket.  It returns true
// only for the first caller.
func (c *Conn) shutdown() bool {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.state.Store(int32(session.Closed))

		c.mu.Lock()
		nc, cancel := c.nc, c.cancel
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if nc != nil {
			nc.Close()
			c.cfg.Metrics.ConnectionClosed()
		}
	})
	return first
}

func (c *Conn) takeHandshake() HandshakeFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb := c.onHandshake
	c.onHandshake = nil
	return cb
}

func (c *Conn) write(frame string) error {
	c.mu.Lock()
	nc := c.nc
	c.mu.Unlock()
	if nc == nil {
		return tcerr.ErrClosed
	}

	data := wire.Frame(frame)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := nc.Write(data); err != nil {
		return err
	}
	c.cfg.Metrics.FrameSent(len(data))
	c.logger.Debug("-> %q", frame)
	return nil
}
