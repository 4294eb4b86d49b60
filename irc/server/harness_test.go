package server

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/presbrey/ftirc/irc"
	"github.com/presbrey/ftirc/irc/config"
	"github.com/stretchr/testify/require"
)

const testPassword = "secret"

// fakeConn records everything written to it. Reads report EOF; the tests
// drive the server by calling receive directly.
type fakeConn struct {
	mu     sync.Mutex
	out    bytes.Buffer
	closed bool
	port   int
}

func (f *fakeConn) Read([]byte) (int, error) { return 0, io.EOF }

func (f *fakeConn) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, net.ErrClosed
	}
	return f.out.Write(p)
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 6667}
}

func (f *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: f.port}
}

func (f *fakeConn) SetDeadline(time.Time) error      { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// take drains the recorded output into lines
func (f *fakeConn) take() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw := f.out.String()
	f.out.Reset()

	var lines []string
	for _, line := range strings.Split(raw, "\r\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

type testClient struct {
	*Client
	t    *testing.T
	s    *Server
	conn *fakeConn
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Password = testPassword
	for _, fn := range mutate {
		fn(cfg)
	}
	require.NoError(t, cfg.Validate())
	return New(cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

var nextPort = 40000

func (s *Server) connectTest(t *testing.T) *testClient {
	t.Helper()
	nextPort++
	conn := &fakeConn{port: nextPort}
	return &testClient{Client: s.addClient(conn), t: t, s: s, conn: conn}
}

// send feeds each line, CRLF terminated, through the framer and dispatcher
func (tc *testClient) send(lines ...string) {
	for _, line := range lines {
		tc.s.receive(tc.Client, []byte(line+"\r\n"))
	}
}

func (tc *testClient) lines() []string {
	return tc.conn.take()
}

func (tc *testClient) messages() []*irc.Message {
	var out []*irc.Message
	for _, line := range tc.conn.take() {
		out = append(out, irc.ParseMessage(line))
	}
	return out
}

// commands returns the verbs of the pending output
func (tc *testClient) commands() []string {
	var out []string
	for _, msg := range tc.messages() {
		out = append(out, msg.Command)
	}
	return out
}

// register runs the full PASS, NICK, USER sequence and discards the burst
func (s *Server) registerTest(t *testing.T, nick string) *testClient {
	t.Helper()
	tc := s.connectTest(t)
	tc.send("PASS "+testPassword, "NICK "+nick, "USER "+nick+" 0 * :"+nick+" Test")
	require.True(t, tc.State().Registered(), "registration of %s", nick)
	tc.lines()
	return tc
}

func findCommand(msgs []*irc.Message, command string) *irc.Message {
	for _, msg := range msgs {
		if msg.Command == command {
			return msg
		}
	}
	return nil
}

func countCommand(msgs []*irc.Message, command string) int {
	n := 0
	for _, msg := range msgs {
		if msg.Command == command {
			n++
		}
	}
	return n
}
