package server

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/presbrey/ftirc/irc"
)

// namesBudget keeps RPL_NAMREPLY lines well inside the line limit
const namesBudget = 400

// handleJoin handles the JOIN command
func handleJoin(p *HookParams) error {
	s, c, msg := p.Server, p.Client, p.Message

	var names []string
	if len(msg.Params) > 0 {
		names = irc.SplitList(msg.Params[0])
	}
	if len(names) == 0 {
		c.SendNumeric(irc.ERR_NEEDMOREPARAMS, "JOIN", "Not enough parameters")
		return nil
	}

	var keys []string
	if len(msg.Params) > 1 {
		keys = strings.Split(msg.Params[1], ",")
	}

	for i, name := range names {
		key := ""
		if i < len(keys) {
			key = keys[i]
		}
		s.join(c, name, key)
	}
	return nil
}

func (s *Server) join(c *Client, name, key string) {
	if !irc.IsValidChannelName(name) {
		c.SendNumeric(irc.ERR_BADCHANMASK, name, "Bad Channel Mask")
		return
	}

	tooMany := len(c.channels) >= s.Config.Limits.ChannelsPerClient
	ch := s.channels[name]

	if ch == nil {
		if tooMany {
			c.SendNumeric(irc.ERR_TOOMANYCHANNELS, name, "You have joined too many channels")
			return
		}
		ch = NewChannel(name)
		s.channels[name] = ch
		s.log.Info("channel created", "channel", name, "by", c.Nickname)
		s.emit(EventChannelCreate, c, ch, "")
		s.admit(c, ch, true)
		return
	}

	switch {
	case ch.Modes.InviteOnly && !ch.IsInvited(c.ID):
		c.SendNumeric(irc.ERR_INVITEONLYCHAN, name, "Cannot join channel (+i)")
	case ch.Modes.Key != "" && key != ch.Modes.Key:
		c.SendNumeric(irc.ERR_BADCHANNELKEY, name, "Cannot join channel (+k)")
	case ch.Full():
		c.SendNumeric(irc.ERR_CHANNELISFULL, name, "Cannot join channel (+l)")
	case ch.IsMember(c.ID):
		c.SendNumeric(irc.ERR_USERONCHANNEL, c.Nickname, name, "is already on channel")
	case tooMany:
		c.SendNumeric(irc.ERR_TOOMANYCHANNELS, name, "You have joined too many channels")
	default:
		s.admit(c, ch, false)
	}
}

// admit adds c to ch, announces the JOIN to the whole membership and sends
// the joiner the topic and names list
func (s *Server) admit(c *Client, ch *Channel, operator bool) {
	ch.AddMember(c.ID, operator)
	c.channels[ch.Name] = struct{}{}

	s.broadcast(ch, irc.NewMessage(c.Hostmask(), "JOIN", ch.Name), nil)
	s.sendTopic(c, ch)
	s.sendNames(c, ch)
	s.emit(EventJoin, c, ch, "")
}

// leave removes c from ch, destroying the channel once it is empty
func (s *Server) leave(c *Client, ch *Channel) {
	ch.RemoveMember(c.ID)
	delete(c.channels, ch.Name)
	if ch.Empty() {
		s.destroyChannel(ch.Name, ch)
	}
}

func (s *Server) destroyChannel(name string, ch *Channel) {
	delete(s.channels, name)
	s.log.Info("channel destroyed", "channel", name)
	s.emit(EventChannelDestroy, nil, ch, "")
}

// broadcast sends msg to every member of ch except skip
func (s *Server) broadcast(ch *Channel, msg *irc.Message, skip *Client) {
	line := msg.String()
	for _, member := range s.members(ch) {
		if member != skip {
			member.SendRaw(line)
		}
	}
}

// members resolves the member set through the connection table, sorted by
// nickname
func (s *Server) members(ch *Channel) []*Client {
	out := make([]*Client, 0, ch.MemberCount())
	for _, id := range ch.MemberIDs() {
		c := s.clients[id]
		if c == nil {
			s.log.Warn("channel references unknown connection", "channel", ch.Name, "conn", id)
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Nickname < out[j].Nickname
	})
	return out
}

func (s *Server) sendTopic(c *Client, ch *Channel) {
	if ch.Topic == "" {
		c.SendNumeric(irc.RPL_NOTOPIC, ch.Name, "No topic is set")
		return
	}
	c.SendNumeric(irc.RPL_TOPIC, ch.Name, ch.Topic)
	c.SendNumeric(irc.RPL_TOPICWHOTIME, ch.Name, ch.TopicSetBy, strconv.FormatInt(ch.TopicSetAt.Unix(), 10))
}

func (s *Server) sendNames(c *Client, ch *Channel) {
	var batch []string
	size := 0
	flush := func() {
		c.SendNumeric(irc.RPL_NAMREPLY, "=", ch.Name, strings.Join(batch, " "))
		batch, size = nil, 0
	}

	for _, member := range s.members(ch) {
		name := member.Nickname
		if ch.IsOperator(member.ID) {
			name = "@" + name
		}
		if size+len(name)+1 > namesBudget && len(batch) > 0 {
			flush()
		}
		batch = append(batch, name)
		size += len(name) + 1
	}
	if len(batch) > 0 {
		flush()
	}
	c.SendNumeric(irc.RPL_ENDOFNAMES, ch.Name, "End of /NAMES list")
}

// handlePart handles the PART command
func handlePart(p *HookParams) error {
	s, c, msg := p.Server, p.Client, p.Message

	var names []string
	if len(msg.Params) > 0 {
		names = irc.SplitList(msg.Params[0])
	}
	if len(names) == 0 {
		c.SendNumeric(irc.ERR_NEEDMOREPARAMS, "PART", "Not enough parameters")
		return nil
	}

	params := []string{""}
	if reason := msg.Param(1); reason != "" {
		params = append(params, reason)
	}

	for _, name := range names {
		ch := s.channels[name]
		if ch == nil {
			c.SendNumeric(irc.ERR_NOSUCHCHANNEL, name, "No such channel")
			continue
		}
		if !ch.IsMember(c.ID) {
			c.SendNumeric(irc.ERR_NOTONCHANNEL, name, "You're not on that channel")
			continue
		}

		params[0] = name
		s.broadcast(ch, irc.NewMessage(c.Hostmask(), "PART", params...), nil)
		s.emit(EventPart, c, ch, msg.Param(1))
		s.leave(c, ch)
	}
	return nil
}

// handleTopic queries or sets a channel topic
func handleTopic(p *HookParams) error {
	s, c, msg := p.Server, p.Client, p.Message

	if len(msg.Params) == 0 {
		c.SendNumeric(irc.ERR_NEEDMOREPARAMS, "TOPIC", "Not enough parameters")
		return nil
	}

	name := msg.Params[0]
	ch := s.channels[name]
	if ch == nil {
		c.SendNumeric(irc.ERR_NOSUCHCHANNEL, name, "No such channel")
		return nil
	}
	if !ch.IsMember(c.ID) {
		c.SendNumeric(irc.ERR_NOTONCHANNEL, name, "You're not on that channel")
		return nil
	}

	if len(msg.Params) == 1 {
		s.sendTopic(c, ch)
		return nil
	}

	// +t only restates this; members never set the topic without operator status
	if !ch.IsOperator(c.ID) {
		c.SendNumeric(irc.ERR_CHANOPRIVSNEEDED, name, "You're not channel operator")
		return nil
	}

	ch.Topic = msg.Params[1]
	ch.TopicSetBy = c.Hostmask()
	ch.TopicSetAt = time.Now()
	s.broadcast(ch, irc.NewMessage(c.Hostmask(), "TOPIC", name, ch.Topic), nil)
	return nil
}

// handleInvite handles the INVITE command
func handleInvite(p *HookParams) error {
	s, c, msg := p.Server, p.Client, p.Message

	if len(msg.Params) < 2 {
		c.SendNumeric(irc.ERR_NEEDMOREPARAMS, "INVITE", "Not enough parameters")
		return nil
	}

	nick, name := msg.Params[0], msg.Params[1]
	target := s.nicks[nick]
	if target == nil {
		c.SendNumeric(irc.ERR_NOSUCHNICK, nick, "No such nick/channel")
		return nil
	}
	ch := s.channels[name]
	if ch == nil {
		c.SendNumeric(irc.ERR_NOSUCHCHANNEL, name, "No such channel")
		return nil
	}
	if !ch.IsMember(c.ID) {
		c.SendNumeric(irc.ERR_NOTONCHANNEL, name, "You're not on that channel")
		return nil
	}
	if !ch.IsOperator(c.ID) {
		c.SendNumeric(irc.ERR_CHANOPRIVSNEEDED, name, "You're not channel operator")
		return nil
	}
	if ch.IsMember(target.ID) {
		c.SendNumeric(irc.ERR_USERONCHANNEL, nick, name, "is already on channel")
		return nil
	}

	ch.Invite(target.ID)
	c.SendNumeric(irc.RPL_INVITING, nick, name)
	target.SendMessage(c.Hostmask(), "INVITE", nick, name)
	return nil
}

// handleKick handles the KICK command
func handleKick(p *HookParams) error {
	s, c, msg := p.Server, p.Client, p.Message

	if len(msg.Params) < 2 {
		c.SendNumeric(irc.ERR_NEEDMOREPARAMS, "KICK", "Not enough parameters")
		return nil
	}

	name := msg.Params[0]
	if !irc.IsValidChannelName(name) {
		c.SendNumeric(irc.ERR_BADCHANMASK, name, "Bad Channel Mask")
		return nil
	}
	ch := s.channels[name]
	if ch == nil {
		c.SendNumeric(irc.ERR_NOSUCHCHANNEL, name, "No such channel")
		return nil
	}
	if !ch.IsMember(c.ID) {
		c.SendNumeric(irc.ERR_NOTONCHANNEL, name, "You're not on that channel")
		return nil
	}
	if !ch.IsOperator(c.ID) {
		c.SendNumeric(irc.ERR_CHANOPRIVSNEEDED, name, "You're not channel operator")
		return nil
	}

	reason := msg.Param(2)
	if reason == "" {
		reason = "No reason given"
	}

	for _, nick := range irc.SplitList(msg.Params[1]) {
		target := s.nicks[nick]
		if target == nil || !ch.IsMember(target.ID) {
			c.SendNumeric(irc.ERR_USERNOTINCHANNEL, nick, name, "They aren't on that channel")
			continue
		}

		s.broadcast(ch, irc.NewMessage(c.Hostmask(), "KICK", name, nick, reason), nil)
		s.emit(EventKick, target, ch, reason)
		s.leave(target, ch)
		target.log.Info("kicked", "channel", name, "by", c.Nickname)

		if s.channels[name] == nil {
			break
		}
	}
	return nil
}

// handleMode dispatches channel and user MODE
func handleMode(p *HookParams) error {
	s, c, msg := p.Server, p.Client, p.Message

	if len(msg.Params) == 0 {
		c.SendNumeric(irc.ERR_NEEDMOREPARAMS, "MODE", "Not enough parameters")
		return nil
	}

	target := msg.Params[0]
	if !irc.IsChannelName(target) {
		return handleUserMode(p)
	}

	if !irc.IsValidChannelName(target) {
		c.SendNumeric(irc.ERR_BADCHANMASK, target, "Bad Channel Mask")
		return nil
	}
	ch := s.channels[target]
	if ch == nil {
		c.SendNumeric(irc.ERR_NOSUCHCHANNEL, target, "No such channel")
		return nil
	}

	if len(msg.Params) == 1 {
		modes, params := ch.ModeString(ch.IsMember(c.ID))
		c.SendNumeric(irc.RPL_CHANNELMODEIS, append([]string{target, modes}, params...)...)
		c.SendNumeric(irc.RPL_CREATIONTIME, target, strconv.FormatInt(ch.CreatedAt.Unix(), 10))
		return nil
	}

	if !ch.IsOperator(c.ID) {
		c.SendNumeric(irc.ERR_CHANOPRIVSNEEDED, target, "You're not channel operator")
		return nil
	}

	s.applyChannelModes(c, ch, msg.Params[1], msg.Params[2:])
	return nil
}

func handleUserMode(p *HookParams) error {
	s, c, msg := p.Server, p.Client, p.Message

	nick := msg.Params[0]
	if nick != c.Nickname {
		if s.nicks[nick] == nil {
			c.SendNumeric(irc.ERR_NOSUCHNICK, nick, "No such nick/channel")
		} else {
			c.SendNumeric(irc.ERR_USERSDONTMATCH, "Cannot change mode for other users")
		}
		return nil
	}

	if len(msg.Params) == 1 {
		c.SendNumeric(irc.RPL_UMODEIS, c.Modes.String())
		return nil
	}

	s.applyUserModes(c, msg.Params[1])
	return nil
}

// handleNames lists members of the named channels
func handleNames(p *HookParams) error {
	s, c, msg := p.Server, p.Client, p.Message

	if len(msg.Params) == 0 {
		c.SendNumeric(irc.RPL_ENDOFNAMES, "*", "End of /NAMES list")
		return nil
	}

	for _, name := range irc.SplitList(msg.Params[0]) {
		if ch := s.channels[name]; ch != nil {
			s.sendNames(c, ch)
		} else {
			c.SendNumeric(irc.RPL_ENDOFNAMES, name, "End of /NAMES list")
		}
	}
	return nil
}

// handleList lists every channel with its member count and topic
func handleList(p *HookParams) error {
	s, c := p.Server, p.Client

	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	sort.Strings(names)

	c.SendNumeric(irc.RPL_LISTSTART, "Channel", "Users  Name")
	for _, name := range names {
		ch := s.channels[name]
		c.SendNumeric(irc.RPL_LIST, name, strconv.Itoa(ch.MemberCount()), ch.Topic)
	}
	c.SendNumeric(irc.RPL_LISTEND, "End of /LIST")
	return nil
}
