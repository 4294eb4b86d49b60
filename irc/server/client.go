package server

import (
	"io"
	"log/slog"
	"net"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/presbrey/ftirc/irc"
	"golang.org/x/time/rate"
)

// RegState is a connection's position in the registration sequence. It only
// moves forward: Unauthenticated, PasswordOK, then NickSet or UserSet in
// either order, then Registered.
type RegState uint8

const (
	StateUnauthenticated RegState = iota
	StatePasswordOK
	StateNickSet
	StateUserSet
	StateRegistered
)

var regStateNames = [...]string{
	StateUnauthenticated: "unauthenticated",
	StatePasswordOK:      "password-ok",
	StateNickSet:         "nick-set",
	StateUserSet:         "user-set",
	StateRegistered:      "registered",
}

func (s RegState) String() string {
	if int(s) < len(regStateNames) {
		return regStateNames[s]
	}
	return "invalid"
}

// PasswordVerified reports whether PASS has succeeded
func (s RegState) PasswordVerified() bool { return s >= StatePasswordOK }

// HasNick reports whether a nickname has been assigned
func (s RegState) HasNick() bool { return s == StateNickSet || s == StateRegistered }

// HasUser reports whether USER has been accepted
func (s RegState) HasUser() bool { return s == StateUserSet || s == StateRegistered }

// Registered reports whether registration is complete
func (s RegState) Registered() bool { return s == StateRegistered }

func (s RegState) withNick() RegState {
	switch s {
	case StatePasswordOK:
		return StateNickSet
	case StateUserSet:
		return StateRegistered
	}
	return s
}

func (s RegState) withUser() RegState {
	switch s {
	case StatePasswordOK:
		return StateUserSet
	case StateNickSet:
		return StateRegistered
	}
	return s
}

// Client represents one accepted connection. All fields are owned by the
// server's event loop goroutine.
type Client struct {
	ID          string
	Nickname    string
	Username    string
	Realname    string
	Hostname    string
	Modes       UserModes
	ConnectedAt time.Time

	state    RegState
	channels map[string]struct{}
	conn     net.Conn
	framer   irc.Framer
	limiter  *rate.Limiter
	server   *Server
	log      *slog.Logger
	closed   bool
}

func newClient(s *Server, conn net.Conn) *Client {
	host := conn.RemoteAddr().String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	c := &Client{
		ID:          uuid.New().String(),
		Hostname:    host,
		ConnectedAt: time.Now(),
		channels:    make(map[string]struct{}),
		conn:        conn,
		server:      s,
	}
	c.log = s.log.With("conn", c.ID, "remote", host)

	if lim := s.Config.Limits; lim.FloodRate > 0 {
		burst := lim.FloodBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(lim.FloodRate), burst)
	}
	return c
}

// State returns the registration state
func (c *Client) State() RegState {
	return c.state
}

// Hostmask returns the full nick!user@host identifier
func (c *Client) Hostmask() string {
	return irc.FormatHostmask(c.Nickname, c.Username, c.Hostname)
}

// Channels returns the names of joined channels, sorted
func (c *Client) Channels() []string {
	names := make([]string, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// target is the first parameter of numeric replies
func (c *Client) target() string {
	if c.Nickname == "" {
		return "*"
	}
	return c.Nickname
}

// SendRaw writes one line. Writes are synchronous and bounded by the write
// timeout; a failed write is only logged.
func (c *Client) SendRaw(line string) {
	if c.closed {
		return
	}

	// Outbound lines obey the same limit as inbound ones
	line = truncateLine(line, irc.MaxLineLength-2)

	if d := c.server.Config.Limits.WriteTimeout.Duration; d > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(d))
	}
	if _, err := io.WriteString(c.conn, line+"\r\n"); err != nil {
		c.log.Warn("write failed", "err", err)
	}
}

// Send writes a message
func (c *Client) Send(msg *irc.Message) {
	c.SendRaw(msg.String())
}

// SendMessage formats and writes a message
func (c *Client) SendMessage(prefix, command string, params ...string) {
	c.SendRaw(irc.NewMessage(prefix, command, params...).String())
}

// SendNumeric sends a numeric reply from the server addressed to this client
func (c *Client) SendNumeric(code string, params ...string) {
	if irc.IsError(code) {
		c.server.Metrics.Errors.WithLabelValues(code).Inc()
	}
	c.SendMessage(c.server.Name(), code, append([]string{c.target()}, params...)...)
}

// SendNotice sends a server NOTICE to this client
func (c *Client) SendNotice(text string) {
	c.SendMessage(c.server.Name(), "NOTICE", c.target(), text)
}

// truncateLine cuts line to at most limit bytes without splitting a UTF-8
// sequence.
func truncateLine(line string, limit int) string {
	if len(line) <= limit {
		return line
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut]
}
