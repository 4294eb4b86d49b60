package server

import (
	"crypto/subtle"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/presbrey/ftirc/irc"
	"golang.org/x/crypto/bcrypt"
)

// maxParams is the parameter ceiling enforced before routing
const maxParams = 15

// Hook handles one command for one client
type Hook func(params *HookParams) error

// HookParams contains the context of a command
type HookParams struct {
	Server  *Server
	Client  *Client
	Message *irc.Message
}

// command is a routing table entry. preAuth commands are allowed before PASS
// succeeds, preRegister ones before registration completes.
type command struct {
	hook        Hook
	preAuth     bool
	preRegister bool
}

func (s *Server) registerCommands() {
	s.commands = map[string]command{
		"PASS": {hook: handlePass, preAuth: true, preRegister: true},
		"CAP":  {hook: handleCap, preAuth: true, preRegister: true},
		"PING": {hook: handlePing, preAuth: true, preRegister: true},
		"QUIT": {hook: handleQuit, preAuth: true, preRegister: true},
		"NICK": {hook: handleNick, preRegister: true},
		"USER": {hook: handleUser, preRegister: true},
		"PONG": {hook: handlePong, preRegister: true},

		"JOIN":    {hook: handleJoin},
		"PART":    {hook: handlePart},
		"PRIVMSG": {hook: handlePrivmsg},
		"NOTICE":  {hook: handleNotice},
		"MODE":    {hook: handleMode},
		"TOPIC":   {hook: handleTopic},
		"INVITE":  {hook: handleInvite},
		"KICK":    {hook: handleKick},
		"WHO":     {hook: handleWho},
		"NAMES":   {hook: handleNames},
		"LIST":    {hook: handleList},
	}
}

// dispatch parses one line and routes it after the central checks: flood
// control, parameter ceiling, password gate, registration gate.
func (s *Server) dispatch(c *Client, line string) {
	msg := irc.ParseMessage(line)
	if !msg.Valid() {
		c.log.Debug("dropping line without a command")
		return
	}

	if c.limiter != nil && !c.limiter.Allow() {
		s.Metrics.FloodDropped.Inc()
		c.SendNotice("Flood limit exceeded, line dropped")
		return
	}

	cmd, known := s.commands[msg.Command]
	label := msg.Command
	if !known {
		label = "unknown"
	}
	s.Metrics.Commands.WithLabelValues(label).Inc()
	start := time.Now()
	defer func() {
		s.Metrics.CommandDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	switch {
	case len(msg.Params) > maxParams:
		c.SendNumeric(irc.ERR_UNKNOWNERROR, msg.Command, "Too many parameters")
	case !c.state.PasswordVerified() && !cmd.preAuth:
		c.SendNumeric(irc.ERR_PASSWDMISMATCH, "Password required")
	case !c.state.Registered() && !cmd.preRegister:
		c.SendNumeric(irc.ERR_NOTREGISTERED, "You have not registered")
	case !known:
		c.SendNumeric(irc.ERR_UNKNOWNCOMMAND, msg.Command, "Unknown command")
	default:
		if err := cmd.hook(&HookParams{Server: s, Client: c, Message: msg}); err != nil {
			c.log.Error("command failed", "cmd", msg.Command, "err", err)
		}
	}
}

// advance moves the client to next and sends the welcome burst on the one
// transition into Registered
func (s *Server) advance(c *Client, next RegState) {
	prev := c.state
	c.state = next
	if !prev.Registered() && next.Registered() {
		s.welcome(c)
	}
}

func (s *Server) welcome(c *Client) {
	name := s.Name()
	c.SendNumeric(irc.RPL_WELCOME, fmt.Sprintf("Welcome to the %s IRC Network %s", s.Config.Server.Network, c.Hostmask()))
	c.SendNumeric(irc.RPL_YOURHOST, fmt.Sprintf("Your host is %s, running version %s", name, Version))
	c.SendNumeric(irc.RPL_CREATED, "This server was created "+s.startTime.Format(time.RFC1123))
	c.SendNumeric(irc.RPL_MYINFO, name, Version, userModeLetters, channelModeLetters)
	c.SendNumeric(irc.RPL_ISUPPORT, append(s.isupport(), "are supported by this server")...)

	c.log.Info("client registered", "nick", c.Nickname, "user", c.Username)
	s.emit(EventRegister, c, nil, "")
}

func (s *Server) isupport() []string {
	return []string{
		"CHANTYPES=" + irc.ChannelSigils,
		"CHANMODES=,k,l,it",
		"PREFIX=(o)@",
		"MODES=" + strconv.Itoa(maxModeArgs),
		"NICKLEN=" + strconv.Itoa(irc.MaxNickLength),
		"CHANNELLEN=" + strconv.Itoa(irc.MaxChannelLength),
		"CHANLIMIT=" + irc.ChannelSigils + ":" + strconv.Itoa(s.Config.Limits.ChannelsPerClient),
		"NETWORK=" + s.Config.Server.Network,
	}
}

func (s *Server) checkPassword(password string) bool {
	if hash := s.Config.Server.PasswordHash; hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(s.Config.Server.Password)) == 1
}

// handlePass handles the PASS command
func handlePass(p *HookParams) error {
	s, c, msg := p.Server, p.Client, p.Message

	if c.state.PasswordVerified() {
		c.SendNumeric(irc.ERR_ALREADYREGISTERED, "You may not reregister")
		return nil
	}
	if len(msg.Params) != 1 {
		c.SendNumeric(irc.ERR_NEEDMOREPARAMS, "PASS", "Not enough parameters")
		return nil
	}
	if !s.checkPassword(msg.Params[0]) {
		c.log.Info("password mismatch")
		c.SendNumeric(irc.ERR_PASSWDMISMATCH, "Password incorrect")
		return nil
	}

	s.advance(c, StatePasswordOK)
	return nil
}

// handleNick handles the NICK command
func handleNick(p *HookParams) error {
	s, c, msg := p.Server, p.Client, p.Message

	if len(msg.Params) == 0 || msg.Params[0] == "" {
		c.SendNumeric(irc.ERR_NONICKNAMEGIVEN, "No nickname given")
		return nil
	}
	if len(msg.Params) > 1 {
		c.SendNumeric(irc.ERR_NEEDMOREPARAMS, "NICK", "Not enough parameters")
		return nil
	}

	nick := msg.Params[0]
	if !irc.IsValidNickname(nick) {
		c.SendNumeric(irc.ERR_ERRONEUSNICKNAME, nick, "Erroneous nickname")
		return nil
	}
	if nick == c.Nickname {
		return nil
	}
	if s.nicks[nick] != nil {
		c.SendNumeric(irc.ERR_NICKNAMEINUSE, nick, "Nickname is already in use")
		return nil
	}

	oldNick, oldMask := c.Nickname, c.Hostmask()
	if oldNick != "" {
		delete(s.nicks, oldNick)
	}
	s.nicks[nick] = c
	c.Nickname = nick

	if !c.state.Registered() {
		s.advance(c, c.state.withNick())
		return nil
	}

	change := irc.NewMessage(oldMask, "NICK", nick)
	for _, other := range s.clients {
		if other != c && other.state.Registered() {
			other.Send(change)
		}
	}
	c.log.Info("nick changed", "old", oldNick, "new", nick)
	s.emit(EventNick, c, nil, oldNick)
	return nil
}

// handleUser handles the USER command
func handleUser(p *HookParams) error {
	s, c, msg := p.Server, p.Client, p.Message

	if c.state.HasUser() {
		c.SendNumeric(irc.ERR_ALREADYREGISTERED, "You may not reregister")
		return nil
	}
	if len(msg.Params) < 4 || msg.Params[0] == "" {
		c.SendNumeric(irc.ERR_NEEDMOREPARAMS, "USER", "Not enough parameters")
		return nil
	}

	c.Username = msg.Params[0]
	c.Realname = strings.TrimPrefix(msg.Params[3], ":")
	s.advance(c, c.state.withUser())
	return nil
}

// handlePing answers only pings addressed to this server
func handlePing(p *HookParams) error {
	s, c, msg := p.Server, p.Client, p.Message

	if len(msg.Params) == 0 {
		c.SendNumeric(irc.ERR_NOORIGIN, "No origin specified")
		return nil
	}

	token := msg.Params[0]
	if token != s.Name() {
		c.SendNumeric(irc.ERR_NOSUCHSERVER, token, "No such server")
		return nil
	}
	c.SendMessage(s.Name(), "PONG", s.Name(), token)
	return nil
}

// handlePong accepts keepalive replies
func handlePong(*HookParams) error {
	return nil
}

// handleCap answers capability negotiation with an empty capability set
func handleCap(p *HookParams) error {
	s, c, msg := p.Server, p.Client, p.Message

	if len(msg.Params) == 0 {
		c.SendNumeric(irc.ERR_NEEDMOREPARAMS, "CAP", "Not enough parameters")
		return nil
	}

	sub := strings.ToUpper(msg.Params[0])
	switch sub {
	case "LS", "LIST":
		c.SendMessage(s.Name(), "CAP", c.target(), sub, "")
	case "REQ":
		c.SendMessage(s.Name(), "CAP", c.target(), "NAK", msg.Param(1))
	case "END":
	default:
		c.SendNumeric(irc.ERR_INVALIDCAPCMD, sub, "Invalid CAP command")
	}
	return nil
}

// handleQuit closes the link after notifying channel peers
func handleQuit(p *HookParams) error {
	s, c, msg := p.Server, p.Client, p.Message

	reason := "Client Quit"
	if text := msg.Param(0); text != "" {
		reason = "Quit: " + text
	}

	c.SendRaw(fmt.Sprintf("ERROR :Closing Link: %s (%s)", c.Hostname, reason))
	s.disconnect(c, reason)
	return nil
}
