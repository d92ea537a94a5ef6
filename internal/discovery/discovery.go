// Package discovery finds Trimmer servers on the local network.
//
// The listener owns a single UDP socket on an ephemeral port.  A probe
// broadcasts the client hello to the discovery port; every server that
// hears it answers by unicast with "<token> <identity>".  Replies are
// reported through the OnFound callback from the receive goroutine.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	tcerr "trimctl/internal/errors"
	"trimctl/internal/metrics"
	"trimctl/internal/wire"
	"trimctl/util"
)

// Peer is a server that answered a probe.
type Peer struct {
	Addr     net.IP
	Identity string
}

func (p Peer) String() string {
	return fmt.Sprintf("%s %s", p.Addr, p.Identity)
}

// Config configures a [Listener].
type Config struct {
	Port          int    // discovery port servers listen on
	BroadcastAddr string // destination of probes, normally 255.255.255.255
	Hello         string // client hello, without delimiter
	Token         string // expected server hello token
	Logger        *util.Logger
	Metrics       *metrics.Collector
}

// Listener sends discovery probes and reports answering servers.
type Listener struct {
	cfg    Config
	logger *util.Logger

	mu      sync.Mutex
	conn    *net.UDPConn
	onFound func(Peer)
}

// New returns a listener that is not yet listening.
func New(cfg Config) *Listener {
	return &Listener{
		cfg:    cfg,
		logger: util.OrQuiet(cfg.Logger).Named("discovery"),
	}
}

// OnFound registers the callback for discovered servers.  It runs on
// the receive goroutine.
func (l *Listener) OnFound(fn func(Peer)) {
	l.mu.Lock()
	l.onFound = fn
	l.mu.Unlock()
}

// StartListening opens the socket and starts the receive loop.
// Calling it while already listening does nothing.
func (l *Listener) StartListening() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return nil
	}

	lc := net.ListenConfig{Control: broadcastControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return tcerr.Wrap("listen", "udp4 :0", err)
	}
	conn := pc.(*net.UDPConn)
	l.conn = conn

	l.logger.Verbose("listening on %s", conn.LocalAddr())
	go l.receive(conn)
	return nil
}

// Listening reports whether the socket is open.
func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// LocalAddr returns the socket address, or nil when not listening.
func (l *Listener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Probe broadcasts one client hello datagram.
func (l *Listener) Probe() error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()

	if conn == nil {
		return tcerr.ErrNotListening
	}

	target := util.FormatAddr(l.cfg.BroadcastAddr, l.cfg.Port)
	dst, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return tcerr.Wrap("probe", target, err)
	}

	frame := wire.Frame(l.cfg.Hello)
	if _, err := conn.WriteToUDP(frame, dst); err != nil {
		if tcerr.IsClosed(err) {
			return tcerr.ErrNotListening
		}
		return tcerr.Wrap("probe", target, err)
	}

	l.cfg.Metrics.ProbeSent()
	l.logger.Debug("probe sent to %s", dst)
	return nil
}

// StopListening closes the socket.  The receive loop ends on its own;
// datagrams already read are not reported.
func (l *Listener) StopListening() {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn != nil {
		conn.Close()
		l.logger.Verbose("stopped listening")
	}
}

// receive reads datagrams until conn is closed.
func (l *Listener) receive(conn *net.UDPConn) {
	for {
		buf := util.GetBuf()
		n, from, err := conn.ReadFromUDP(*buf)
		if err != nil {
			util.PutBuf(buf)
			if tcerr.IsClosed(err) || !l.current(conn) {
				return
			}
			l.logger.Error("receive: %v", err)
			l.cfg.Metrics.RecordError(err.Error())
			continue
		}

		message := wire.Decode((*buf)[:n])
		util.PutBuf(buf)
		l.handle(conn, message, from)
	}
}

// handle reports a single datagram.  A panicking callback is logged
// and the loop keeps going.
func (l *Listener) handle(conn *net.UDPConn, message string, from *net.UDPAddr) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("handling datagram from %s: %v", from, r)
		}
	}()

	identity, ok := Parse(message, l.cfg.Token)
	if !ok {
		l.logger.Debug("ignoring datagram from %s: %q", from, message)
		return
	}

	l.mu.Lock()
	fn := l.onFound
	live := l.conn == conn
	l.mu.Unlock()

	if !live {
		return
	}

	l.cfg.Metrics.ServerFound()
	l.logger.Verbose("found %s %q", from.IP, identity)
	if fn != nil {
		fn(Peer{Addr: from.IP, Identity: identity})
	}
}

func (l *Listener) current(conn *net.UDPConn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn == conn
}

// Parse extracts the identity from a discovery reply.  ok is false
// when the message does not start with token.
func Parse(message, token string) (identity string, ok bool) {
	if !strings.HasPrefix(message, token) {
		return "", false
	}
	return strings.TrimSpace(message[len(token):]), true
}
