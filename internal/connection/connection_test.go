package connection

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tcerr "trimctl/internal/errors"
	"trimctl/internal/metrics"
	"trimctl/internal/session"
	"trimctl/util"
)

const waitFor = 2 * time.Second

// fakeServer accepts one connection and hands it to the test.
type fakeServer struct {
	ln    net.Listener
	conns chan net.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	s := &fakeServer{ln: ln, conns: make(chan net.Conn, 1)}
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		s.conns <- nc
	}()
	return s
}

func (s *fakeServer) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

// accept waits for the client, reads its hello and returns both.
func (s *fakeServer) accept(t *testing.T) (net.Conn, *bufio.Reader, string) {
	t.Helper()
	select {
	case nc := <-s.conns:
		t.Cleanup(func() { nc.Close() })
		r := bufio.NewReader(nc)
		nc.SetReadDeadline(time.Now().Add(waitFor)) //nolint:errcheck
		hello, err := r.ReadString('\n')
		require.NoError(t, err)
		return nc, r, strings.TrimSuffix(hello, "\n")
	case <-time.After(waitFor):
		t.Fatal("client never connected")
		return nil, nil, ""
	}
}

type handshake struct {
	ok      bool
	message string
}

// recorder collects callback invocations.
type recorder struct {
	mu      sync.Mutex
	replies []string
	closed  chan error
	hs      chan handshake
}

func newRecorder() *recorder {
	return &recorder{closed: make(chan error, 4), hs: make(chan handshake, 4)}
}

func (r *recorder) onReply(frame string) {
	r.mu.Lock()
	r.replies = append(r.replies, frame)
	r.mu.Unlock()
}

func (r *recorder) onHandshake(ok bool, message string) { r.hs <- handshake{ok, message} }

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.replies...)
}

func (r *recorder) waitHandshake(t *testing.T) handshake {
	t.Helper()
	select {
	case h := <-r.hs:
		return h
	case <-time.After(waitFor):
		t.Fatal("handshake callback never fired")
		return handshake{}
	}
}

func (r *recorder) waitClosed(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.closed:
		return err
	case <-time.After(waitFor):
		t.Fatal("OnClosed never fired")
		return nil
	}
}

func newConn(port int, rec *recorder, m *metrics.Collector) *Conn {
	return New(Config{
		Port:     port,
		Hello:    "TRIM Player 1.0 go1.23",
		Token:    "TRAM",
		Logger:   util.NewLogger(0),
		Metrics:  m,
		OnReply:  rec.onReply,
		OnClosed: func(err error) { rec.closed <- err },
	})
}

// establish connects c to srv and completes the handshake.
func establish(t *testing.T, srv *fakeServer, c *Conn, rec *recorder) (net.Conn, *bufio.Reader) {
	t.Helper()
	require.NoError(t, c.Connect("127.0.0.1", rec.onHandshake))
	nc, r, hello := srv.accept(t)
	require.Equal(t, "TRIM Player 1.0 go1.23", hello)

	_, err := nc.Write([]byte("TRAM Player 1.0\n"))
	require.NoError(t, err)
	h := rec.waitHandshake(t)
	require.True(t, h.ok, h.message)
	return nc, r
}

func TestConnect_Handshake(t *testing.T) {
	srv := newFakeServer(t)
	rec := newRecorder()
	m := metrics.New()
	c := newConn(srv.port(), rec, m)
	t.Cleanup(c.Close)

	assert.Equal(t, session.Idle, c.State())
	require.NoError(t, c.Connect("127.0.0.1", rec.onHandshake))
	nc, _, hello := srv.accept(t)
	assert.Equal(t, "TRIM Player 1.0 go1.23", hello)

	_, err := nc.Write([]byte("TRAM  Player 1.0 \n"))
	require.NoError(t, err)

	h := rec.waitHandshake(t)
	assert.True(t, h.ok)
	assert.Equal(t, "Player 1.0", h.message)
	assert.Equal(t, session.Established, c.State())
	assert.Equal(t, util.FormatAddr("127.0.0.1", srv.port()), c.Addr())
	assert.EqualValues(t, 1, m.Snapshot().ConnectionsActive)
}

func TestConnect_Rejected(t *testing.T) {
	srv := newFakeServer(t)
	rec := newRecorder()
	c := newConn(srv.port(), rec, nil)
	t.Cleanup(c.Close)

	require.NoError(t, c.Connect("127.0.0.1", rec.onHandshake))
	nc, _, _ := srv.accept(t)
	_, err := nc.Write([]byte("HELLO nope\n"))
	require.NoError(t, err)

	closedErr := rec.waitClosed(t)
	assert.True(t, tcerr.IsProtocol(closedErr), "got %v", closedErr)

	h := rec.waitHandshake(t)
	assert.False(t, h.ok)
	assert.Contains(t, h.message, "HELLO nope")
	assert.Equal(t, session.Closed, c.State())
	assert.Empty(t, rec.got())
}

func TestConnect_ClosedBeforeHello(t *testing.T) {
	srv := newFakeServer(t)
	rec := newRecorder()
	c := newConn(srv.port(), rec, nil)
	t.Cleanup(c.Close)

	require.NoError(t, c.Connect("127.0.0.1", rec.onHandshake))
	nc, _, _ := srv.accept(t)
	nc.Close()

	h := rec.waitHandshake(t)
	assert.False(t, h.ok)
	assert.Contains(t, h.message, "before server hello")
}

func TestConnect_Refused(t *testing.T) {
	port, err := util.FindFreePort()
	require.NoError(t, err)

	rec := newRecorder()
	c := newConn(port, rec, nil)
	t.Cleanup(c.Close)

	require.NoError(t, c.Connect("127.0.0.1", rec.onHandshake))
	h := rec.waitHandshake(t)
	assert.False(t, h.ok)
	assert.NotEmpty(t, h.message)
	assert.Equal(t, session.Closed, c.State())
}

func TestConnect_Twice(t *testing.T) {
	srv := newFakeServer(t)
	rec := newRecorder()
	c := newConn(srv.port(), rec, nil)

	require.NoError(t, c.Connect("127.0.0.1", rec.onHandshake))
	assert.ErrorIs(t, c.Connect("127.0.0.1", rec.onHandshake), tcerr.ErrAlreadyConnected)

	c.Close()
	assert.ErrorIs(t, c.Connect("127.0.0.1", rec.onHandshake), tcerr.ErrClosed)
}

func TestSend_Preconditions(t *testing.T) {
	srv := newFakeServer(t)
	rec := newRecorder()
	c := newConn(srv.port(), rec, nil)
	t.Cleanup(c.Close)

	assert.ErrorIs(t, c.Send("PING"), tcerr.ErrNotConnected)

	establish(t, srv, c, rec)
	assert.Error(t, c.Send("GET a\nb"))
}

func TestReplies_InOrder(t *testing.T) {
	srv := newFakeServer(t)
	rec := newRecorder()
	m := metrics.New()
	c := newConn(srv.port(), rec, m)
	t.Cleanup(c.Close)

	nc, r := establish(t, srv, c, rec)

	require.NoError(t, c.Send("GET /a"))
	require.NoError(t, c.Send("GET /b"))
	for _, want := range []string{"GET /a\n", "GET /b\n"} {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}

	_, err := nc.Write([]byte("one\ntwo\nthree\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.got()) == 3 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, rec.got())
	assert.EqualValues(t, 4, m.FramesIn())  // server hello + three replies
	assert.EqualValues(t, 3, m.FramesOut()) // client hello + two commands
}

func TestBlankFrame_ClosesGracefully(t *testing.T) {
	srv := newFakeServer(t)
	rec := newRecorder()
	c := newConn(srv.port(), rec, nil)
	t.Cleanup(c.Close)

	nc, _ := establish(t, srv, c, rec)
	_, err := nc.Write([]byte("  \nlate\n"))
	require.NoError(t, err)

	assert.NoError(t, rec.waitClosed(t))
	assert.Equal(t, session.Closed, c.State())
	assert.Empty(t, rec.got())
	assert.ErrorIs(t, c.Send("PING"), tcerr.ErrNotConnected)
}

func TestEOF_ClosesGracefully(t *testing.T) {
	srv := newFakeServer(t)
	rec := newRecorder()
	c := newConn(srv.port(), rec, nil)
	t.Cleanup(c.Close)

	nc, _ := establish(t, srv, c, rec)
	nc.Close()

	assert.NoError(t, rec.waitClosed(t))
	assert.Equal(t, session.Closed, c.State())
}

func TestClose_Idempotent(t *testing.T) {
	srv := newFakeServer(t)
	rec := newRecorder()
	m := metrics.New()
	c := newConn(srv.port(), rec, m)

	establish(t, srv, c, rec)
	c.Close()
	c.Close()

	assert.Equal(t, session.Closed, c.State())
	assert.EqualValues(t, 0, m.Snapshot().ConnectionsActive)
	select {
	case err := <-rec.closed:
		t.Fatalf("OnClosed fired after local Close: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClose_DuringHandshake(t *testing.T) {
	srv := newFakeServer(t)
	rec := newRecorder()
	c := newConn(srv.port(), rec, nil)

	require.NoError(t, c.Connect("127.0.0.1", rec.onHandshake))
	nc, _, _ := srv.accept(t)
	c.Close()
	nc.Write([]byte("TRAM late\n")) //nolint:errcheck

	select {
	case h := <-rec.hs:
		t.Fatalf("handshake callback fired after Close: %+v", h)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, session.Closed, c.State())
}
