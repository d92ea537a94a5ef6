// Package client is the public API of trimctl: a controller session
// that discovers Trimmer servers, connects to one and sends commands.
//
// A Client is driven from one goroutine, the owner, which must call
// Update regularly.  Command results are delivered from Update on the
// owner's goroutine, in the order the commands were sent.  Discovery
// and connect callbacks run on network goroutines and must not block.
package client

import (
	"runtime"
	"strings"
	"sync"

	"trimctl/config"
	"trimctl/internal/connection"
	"trimctl/internal/discovery"
	"trimctl/internal/dispatch"
	tcerr "trimctl/internal/errors"
	"trimctl/internal/metrics"
	"trimctl/internal/session"
	"trimctl/internal/transport"
	"trimctl/util"
)

// ResultFunc receives a command or connect outcome.  On success
// message is the reply (or the server identity for Connect); on
// failure it explains the error.
type ResultFunc = dispatch.ResultFunc

// Peer is a server that answered a discovery probe.
type Peer = discovery.Peer

// Options configures a [Client].  Zero fields take the defaults from
// the config package.
type Options struct {
	Port          int
	HelloFormat   string // {0} product, {1} version, {2} platform
	ServerHello   string
	BroadcastAddr string

	Product  string
	Version  string
	Platform string // defaults to the Go runtime version

	Dialer  transport.Dialer
	Logger  *util.Logger
	Metrics *metrics.Collector
}

func (o *Options) setDefaults() {
	if o.Port == 0 {
		o.Port = config.DefaultPort
	}
	if o.HelloFormat == "" {
		o.HelloFormat = config.DefaultClientHello
	}
	if o.ServerHello == "" {
		o.ServerHello = config.DefaultServerHello
	}
	if o.BroadcastAddr == "" {
		o.BroadcastAddr = config.DefaultBroadcast
	}
	if o.Product == "" {
		o.Product = config.DefaultProduct
	}
	if o.Platform == "" {
		o.Platform = runtime.Version()
	}
	if o.Dialer == nil {
		o.Dialer = &transport.TCPDialer{}
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
}

// FormatHello expands the {0}, {1} and {2} placeholders of format.
func FormatHello(format, product, version, platform string) string {
	return strings.NewReplacer("{0}", product, "{1}", version, "{2}", platform).Replace(format)
}

// Client is a controller session.
type Client struct {
	logger   *util.Logger
	metrics  *metrics.Collector
	dispatch *dispatch.Dispatcher

	mu       sync.Mutex // guards the fields below
	opts     Options
	hello    string
	status   session.Status // used while conn is nil
	conn     *connection.Conn
	address  string
	identity string
	lastErr  error
	finder   *discovery.Listener
	onFound  func(Peer)
}

// New returns a disconnected client.
func New(opts Options) *Client {
	opts.setDefaults()
	logger := util.OrQuiet(opts.Logger).Named("client")
	return &Client{
		logger:   logger,
		metrics:  opts.Metrics,
		dispatch: dispatch.New(logger, opts.Metrics),
		opts:     opts,
		hello:    FormatHello(opts.HelloFormat, opts.Product, opts.Version, opts.Platform),
	}
}

// ── configuration ────────────────────────────────────────────────────

// SetServerPort changes the discovery and connection port.
func (c *Client) SetServerPort(port int) error {
	return c.reconfigure(func(o *Options) { o.Port = port })
}

// SetClientHelloFormat changes the hello sent on probe and connect.
func (c *Client) SetClientHelloFormat(format string) error {
	return c.reconfigure(func(o *Options) { o.HelloFormat = format })
}

// SetServerHello changes the token expected from servers.
func (c *Client) SetServerHello(token string) error {
	return c.reconfigure(func(o *Options) { o.ServerHello = token })
}

// reconfigure applies fn unless a connection is active.  A running
// discovery listener is stopped so the next FindServers uses the new
// settings.
func (c *Client) reconfigure(fn func(o *Options)) error {
	c.mu.Lock()
	if c.statusLocked().Active() {
		c.mu.Unlock()
		return tcerr.ErrAlreadyConnected
	}
	fn(&c.opts)
	c.hello = FormatHello(c.opts.HelloFormat, c.opts.Product, c.opts.Version, c.opts.Platform)
	finder := c.finder
	c.finder = nil
	c.mu.Unlock()

	if finder != nil {
		finder.StopListening()
	}
	return nil
}

// ServerPort returns the configured port.
func (c *Client) ServerPort() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts.Port
}

// Hello returns the formatted client hello.
func (c *Client) Hello() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hello
}

// ── discovery ────────────────────────────────────────────────────────

// OnServerFound registers the callback for discovered servers.  It
// runs on the discovery goroutine, once per answer.
func (c *Client) OnServerFound(fn func(Peer)) {
	c.mu.Lock()
	c.onFound = fn
	c.mu.Unlock()
}

// FindServers starts listening for answers, if not already listening,
// and broadcasts one probe.
func (c *Client) FindServers() error {
	c.mu.Lock()
	if c.finder == nil {
		c.finder = discovery.New(discovery.Config{
			Port:          c.opts.Port,
			BroadcastAddr: c.opts.BroadcastAddr,
			Hello:         c.hello,
			Token:         c.opts.ServerHello,
			Logger:        c.logger,
			Metrics:       c.metrics,
		})
		c.finder.OnFound(c.serverFound)
	}
	finder := c.finder
	c.mu.Unlock()

	if err := finder.StartListening(); err != nil {
		return err
	}
	return finder.Probe()
}

// StopFinding closes the discovery socket.  Answers already in flight
// are not reported.
func (c *Client) StopFinding() {
	c.mu.Lock()
	finder := c.finder
	c.finder = nil
	c.mu.Unlock()

	if finder != nil {
		finder.StopListening()
	}
}

func (c *Client) serverFound(p Peer) {
	c.mu.Lock()
	fn := c.onFound
	c.mu.Unlock()

	if fn != nil {
		fn(p)
	}
}

// ── connection ───────────────────────────────────────────────────────

// Connect starts connecting to host.  onConnect, if not nil, receives
// (true, identity) once the server greets us, or (false, reason) if
// the attempt fails.  It runs on the connection goroutine.  Connect
// fails with ErrAlreadyConnected while a connection is active.
func (c *Client) Connect(host string, onConnect ResultFunc) error {
	c.mu.Lock()
	if c.statusLocked().Active() {
		c.mu.Unlock()
		return tcerr.ErrAlreadyConnected
	}

	var conn *connection.Conn
	conn = connection.New(connection.Config{
		Dialer:   c.opts.Dialer,
		Port:     c.opts.Port,
		Hello:    c.hello,
		Token:    c.opts.ServerHello,
		Logger:   c.logger,
		Metrics:  c.metrics,
		OnReply:  func(frame string) { c.deliver(conn, frame) },
		OnClosed: func(err error) { c.closed(conn, err) },
	})
	c.conn = conn
	c.address = host
	c.identity = ""
	c.lastErr = nil
	c.mu.Unlock()

	c.dispatch.Reset()

	return conn.Connect(host, func(ok bool, message string) {
		if ok {
			c.mu.Lock()
			if c.conn == conn {
				c.identity = message
			}
			c.mu.Unlock()
			c.logger.Info("connected to %s (%s)", host, message)
		}
		if onConnect != nil {
			onConnect(ok, message)
		}
	})
}

// deliver buffers a reply from conn.  Replies from a connection that
// has since been dropped or replaced are discarded.
func (c *Client) deliver(conn *connection.Conn, frame string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		c.logger.Debug("discarded reply %q from a closed session", frame)
		return
	}
	c.dispatch.Deliver(frame)
}

// closed handles a teardown initiated by the network.
func (c *Client) closed(conn *connection.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.status = session.Closed
	c.address = ""
	c.identity = ""
	c.lastErr = err
	c.mu.Unlock()

	c.dispatch.Reset()
	if err == nil {
		c.logger.Info("server disconnected")
	}
}

// Disconnect closes the connection and drops every pending command
// without invoking its callback.  It does nothing when not connected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if conn != nil {
		c.status = session.Closed
	}
	c.address = ""
	c.identity = ""
	c.mu.Unlock()

	if conn == nil {
		return
	}
	conn.Close()
	c.dispatch.Reset()
	c.logger.Verbose("disconnected")
}

// Close disconnects and stops discovery.
func (c *Client) Close() {
	c.Disconnect()
	c.StopFinding()
}

// Update delivers buffered replies to their callbacks on the calling
// goroutine.  It returns the number of callbacks invoked.
func (c *Client) Update() int {
	return c.dispatch.Poll()
}

// ── commands ─────────────────────────────────────────────────────────

// Ping sends PING.
func (c *Client) Ping(onPong ResultFunc) error {
	return c.RawCommand("PING", "", onPong)
}

// GetValue requests the value of the option at path.
func (c *Client) GetValue(path string, onResult ResultFunc) error {
	return c.RawCommand("GET", path, onResult)
}

// SetValue sends SET with path, which carries the option path and the
// new value as the server expects them.
func (c *Client) SetValue(path string, onResult ResultFunc) error {
	return c.RawCommand("SET", path, onResult)
}

// RawCommand sends "<name> <args>".  It fails with ErrNotConnected
// unless the handshake has completed, or ErrEmbeddedDelimiter if the
// command contains a newline.  Any later failure tears the session
// down and drops onResult.
func (c *Client) RawCommand(name, args string, onResult ResultFunc) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return tcerr.ErrNotConnected
	}
	return c.dispatch.Send(conn, name, args, onResult)
}

// ── state ────────────────────────────────────────────────────────────

func (c *Client) statusLocked() session.Status {
	if c.conn != nil {
		return c.conn.State()
	}
	return c.status
}

// Status returns the connection state.
func (c *Client) Status() session.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Connected reports whether commands can be sent.
func (c *Client) Connected() bool {
	return c.Status() == session.Established
}

// ServerAddress returns the host given to Connect, or "" when
// disconnected.
func (c *Client) ServerAddress() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// Info returns a snapshot of the session.
func (c *Client) Info() session.Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return session.Info{
		Status:   c.statusLocked(),
		Address:  c.address,
		Identity: c.identity,
		Port:     c.opts.Port,
		Hello:    c.hello,
		Token:    c.opts.ServerHello,
	}
}

// LastError returns why the previous connection ended, or nil for a
// graceful close or a local Disconnect.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Pending returns the number of commands awaiting a reply.
func (c *Client) Pending() int {
	return c.dispatch.Pending()
}

// Metrics returns the session counters.
func (c *Client) Metrics() *metrics.Collector {
	return c.metrics
}
