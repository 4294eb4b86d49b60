package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/presbrey/ftirc/hooks"
	"github.com/presbrey/ftirc/irc"
	"github.com/presbrey/ftirc/irc/config"
)

// Version is reported in RPL_YOURHOST and RPL_MYINFO
const Version = "ftirc-1.0"

var (
	// ErrServerClosed is returned by calls into a server whose loop has stopped
	ErrServerClosed = errors.New("server: closed")

	// ErrAlreadyServing is returned when Serve is called twice
	ErrAlreadyServing = errors.New("server: already serving")
)

// Server is a single-owner event loop: the connection table, the nickname
// index and the channel table are only touched by the goroutine running
// Serve. Listener and reader goroutines talk to it through events.
type Server struct {
	Config  *config.Config
	Events  *hooks.Registry[*Event]
	Metrics *Metrics

	log       *slog.Logger
	clients   map[string]*Client
	nicks     map[string]*Client
	channels  map[string]*Channel
	commands  map[string]command
	startTime time.Time

	events   chan event
	ready    chan struct{}
	done     chan struct{}
	serving  atomic.Bool
	listener net.Listener
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.log = logger
	}
}

// WithMetrics sets the metrics collectors, e.g. to share a registry
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.Metrics = m
	}
}

// New creates a server. cfg is expected to be validated.
func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		Config:    cfg,
		Events:    hooks.NewRegistry[*Event](),
		log:       slog.Default(),
		clients:   make(map[string]*Client),
		nicks:     make(map[string]*Client),
		channels:  make(map[string]*Channel),
		startTime: time.Now(),
		events:    make(chan event, 64),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Metrics == nil {
		s.Metrics = NewMetrics()
	}

	s.Events.SetLogger(s.log)
	s.Events.RegisterWithPriority(s.Metrics.observe, -100)
	s.registerCommands()
	return s
}

// Name returns the server name used as reply prefix
func (s *Server) Name() string {
	return s.Config.Server.Name
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled. A failure to listen is returned immediately.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp4", s.Config.GetListenAddress())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Config.GetListenAddress(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and runs the event loop until ctx is
// cancelled, then closes every connection and the listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}

	s.listener = ln
	close(s.ready)
	s.log.Info("listening", "addr", ln.Addr().String(), "server", s.Name())

	go s.acceptLoop(ln)
	defer s.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

// Ready is closed once Serve has taken its listener
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listener address; valid after Ready is closed
func (s *Server) Addr() net.Addr {
	select {
	case <-s.ready:
		return s.listener.Addr()
	default:
		return nil
	}
}

func (s *Server) shutdown() {
	s.listener.Close()
	for _, c := range s.clients {
		c.SendRaw("ERROR :Closing Link: " + c.Hostname + " (Server shutting down)")
		c.closed = true
		c.conn.Close()
	}
	clear(s.clients)
	clear(s.nicks)
	clear(s.channels)
	close(s.done)
	s.log.Info("server stopped")
}

type eventKind uint8

const (
	evAccept eventKind = iota
	evData
	evClosed
	evCall
)

type event struct {
	kind eventKind
	id   string
	conn net.Conn
	data []byte
	err  error
	fn   func()
}

// post hands an event to the loop, giving up once the loop has stopped
func (s *Server) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "err", err)
			select {
			case <-s.done:
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		if !s.post(event{kind: evAccept, conn: conn}) {
			conn.Close()
			return
		}
	}
}

func (s *Server) readLoop(id string, conn net.Conn) {
	buf := make([]byte, 2048)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !s.post(event{kind: evData, id: id, data: data}) {
				return
			}
		}
		if err != nil {
			s.post(event{kind: evClosed, id: id, err: err})
			return
		}
	}
}

func (s *Server) handle(ev event) {
	switch ev.kind {
	case evAccept:
		s.accept(ev.conn)

	case evData:
		c := s.clients[ev.id]
		if c == nil {
			// Data queued before the connection was torn down
			s.log.Debug("data for unknown connection", "conn", ev.id)
			return
		}
		s.receive(c, ev.data)

	case evClosed:
		c := s.clients[ev.id]
		if c == nil {
			return
		}
		reason := "Connection closed"
		if ev.err != nil && !errors.Is(ev.err, io.EOF) {
			reason = "Read error"
			c.log.Debug("read failed", "err", ev.err)
		}
		s.disconnect(c, reason)

	case evCall:
		ev.fn()
	}
}

func (s *Server) accept(conn net.Conn) {
	if max := s.Config.Limits.MaxClients; max > 0 && len(s.clients) >= max {
		s.log.Warn("refusing connection, server full", "remote", conn.RemoteAddr().String())
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		io.WriteString(conn, "ERROR :Closing Link: Server full\r\n")
		conn.Close()
		return
	}

	c := s.addClient(conn)
	go s.readLoop(c.ID, conn)
}

// addClient registers a connection in the table without starting its reader
func (s *Server) addClient(conn net.Conn) *Client {
	c := newClient(s, conn)
	s.clients[c.ID] = c
	c.log.Info("client connected")
	s.emit(EventConnect, c, nil, "")
	return c
}

// receive feeds raw bytes through the framer and dispatches complete lines
func (s *Server) receive(c *Client, data []byte) {
	c.framer.Feed(data)
	lines, tooLong := c.framer.Take()

	for i := 0; i < tooLong; i++ {
		s.Metrics.LinesTooLong.Inc()
		c.SendNumeric(irc.ERR_INPUTTOOLONG, "Input line was too long")
	}
	for _, line := range lines {
		if c.closed {
			return
		}
		s.dispatch(c, line)
	}
}

// disconnect tears a connection down: peers get a QUIT, every channel drops
// its references, empty channels are destroyed, then the connection leaves
// the tables and is closed.
func (s *Server) disconnect(c *Client, reason string) {
	if c.closed {
		return
	}

	if c.state.Registered() {
		quit := irc.NewMessage(c.Hostmask(), "QUIT", reason)
		for _, peer := range s.peers(c) {
			peer.Send(quit)
		}
	}

	c.closed = true
	for name, ch := range s.channels {
		ch.RemoveMember(c.ID)
		if ch.Empty() {
			s.destroyChannel(name, ch)
		}
	}
	clear(c.channels)

	if s.nicks[c.Nickname] == c {
		delete(s.nicks, c.Nickname)
	}
	delete(s.clients, c.ID)
	c.conn.Close()

	c.log.Info("client disconnected", "nick", c.Nickname, "reason", reason)
	s.emit(EventQuit, c, nil, reason)
}

// peers returns every other client sharing at least one channel with c
func (s *Server) peers(c *Client) []*Client {
	seen := make(map[string]struct{})
	var out []*Client
	for name := range c.channels {
		ch := s.channels[name]
		if ch == nil {
			continue
		}
		for _, id := range ch.MemberIDs() {
			if _, dup := seen[id]; dup || id == c.ID {
				continue
			}
			seen[id] = struct{}{}
			if peer := s.clients[id]; peer != nil {
				out = append(out, peer)
			}
		}
	}
	return out
}

// do runs fn on the loop goroutine and waits for it
func (s *Server) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	ev := event{kind: evCall, fn: func() {
		fn()
		close(finished)
	}}

	select {
	case s.events <- ev:
	case <-s.done:
		return ErrServerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrServerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
