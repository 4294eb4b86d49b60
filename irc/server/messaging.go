package server

import (
	"github.com/presbrey/ftirc/irc"
)

// handlePrivmsg handles the PRIVMSG command
func handlePrivmsg(p *HookParams) error {
	p.Server.relay(p.Client, p.Message, true)
	return nil
}

// handleNotice handles NOTICE, which never generates error replies
func handleNotice(p *HookParams) error {
	p.Server.relay(p.Client, p.Message, false)
	return nil
}

// relay delivers a PRIVMSG or NOTICE to every target in a comma list
func (s *Server) relay(c *Client, msg *irc.Message, replies bool) {
	fail := func(code string, params ...string) {
		if replies {
			c.SendNumeric(code, params...)
		}
	}

	var targets []string
	if len(msg.Params) > 0 {
		targets = irc.SplitList(msg.Params[0])
	}
	if len(targets) == 0 {
		fail(irc.ERR_NORECIPIENT, "No recipient given ("+msg.Command+")")
		return
	}
	text := msg.Param(1)
	if text == "" {
		fail(irc.ERR_NOTEXTTOSEND, "No text to send")
		return
	}

	for _, target := range targets {
		out := irc.NewMessage(c.Hostmask(), msg.Command, target, text)

		if irc.IsChannelName(target) {
			ch := s.channels[target]
			if ch == nil {
				fail(irc.ERR_NOSUCHCHANNEL, target, "No such channel")
				continue
			}
			if !ch.IsMember(c.ID) {
				fail(irc.ERR_CANNOTSENDTOCHAN, target, "Cannot send to channel")
				continue
			}
			s.broadcast(ch, out, c)
			continue
		}

		recipient := s.nicks[target]
		if recipient == nil {
			fail(irc.ERR_NOSUCHNICK, target, "No such nick/channel")
			continue
		}
		recipient.Send(out)
	}
}

// handleWho lists the members of a channel, or every visible user when no
// channel is given
func handleWho(p *HookParams) error {
	s, c, msg := p.Server, p.Client, p.Message

	mask := msg.Param(0)
	switch {
	case mask == "" || mask == "*" || mask == "0":
		mask = "*"
		for _, other := range s.clients {
			if !other.state.Registered() {
				continue
			}
			if other.Modes.Invisible && other != c && !s.sharesChannel(c, other) {
				continue
			}
			s.sendWhoReply(c, other, "*", nil)
		}

	case irc.IsChannelName(mask):
		if ch := s.channels[mask]; ch != nil {
			member := ch.IsMember(c.ID)
			for _, other := range s.members(ch) {
				if other.Modes.Invisible && !member {
					continue
				}
				s.sendWhoReply(c, other, ch.Name, ch)
			}
		}

	default:
		if other := s.nicks[mask]; other != nil && other.state.Registered() {
			s.sendWhoReply(c, other, "*", nil)
		}
	}

	c.SendNumeric(irc.RPL_ENDOFWHO, mask, "End of /WHO list")
	return nil
}

func (s *Server) sendWhoReply(c, other *Client, channel string, ch *Channel) {
	flags := "H"
	if ch != nil && ch.IsOperator(other.ID) {
		flags += "@"
	}
	c.SendNumeric(irc.RPL_WHOREPLY, channel, other.Username, other.Hostname,
		s.Name(), other.Nickname, flags, "0 "+other.Realname)
}

func (s *Server) sharesChannel(a, b *Client) bool {
	for name := range a.channels {
		if _, ok := b.channels[name]; ok {
			return true
		}
	}
	return false
}
