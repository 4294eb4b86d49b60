package server

import (
	"strconv"
	"strings"
	"time"
)

// ChannelModes represents the modes of a channel
type ChannelModes struct {
	InviteOnly      bool   // i
	TopicRestricted bool   // t
	Key             string // k, empty when unset
	Limit           int    // l, 0 when unlimited
}

// Channel represents a channel. Members, operators and invitations are sets
// of connection IDs resolved through the server's connection table; the
// operator set is always a subset of the member set.
type Channel struct {
	Name       string
	Topic      string
	TopicSetBy string
	TopicSetAt time.Time
	CreatedAt  time.Time
	Modes      ChannelModes

	members   map[string]struct{}
	operators map[string]struct{}
	invited   map[string]struct{}
}

// NewChannel creates an empty channel. New channels are topic restricted.
func NewChannel(name string) *Channel {
	return &Channel{
		Name:      name,
		CreatedAt: time.Now(),
		members:   make(map[string]struct{}),
		operators: make(map[string]struct{}),
		invited:   make(map[string]struct{}),
	}
}

func (ch *Channel) IsMember(id string) bool {
	_, ok := ch.members[id]
	return ok
}

func (ch *Channel) IsOperator(id string) bool {
	_, ok := ch.operators[id]
	return ok
}

func (ch *Channel) IsInvited(id string) bool {
	_, ok := ch.invited[id]
	return ok
}

// MemberCount returns the number of members in the channel
func (ch *Channel) MemberCount() int {
	return len(ch.members)
}

// Empty reports whether the channel has no members
func (ch *Channel) Empty() bool {
	return len(ch.members) == 0
}

// Full reports whether the user limit has been reached
func (ch *Channel) Full() bool {
	return ch.Modes.Limit > 0 && len(ch.members) >= ch.Modes.Limit
}

// MemberIDs returns the connection IDs of all members, in no particular order
func (ch *Channel) MemberIDs() []string {
	ids := make([]string, 0, len(ch.members))
	for id := range ch.members {
		ids = append(ids, id)
	}
	return ids
}

// AddMember admits a connection and consumes its invitation
func (ch *Channel) AddMember(id string, operator bool) {
	ch.members[id] = struct{}{}
	delete(ch.invited, id)
	if operator {
		ch.operators[id] = struct{}{}
	}
}

// RemoveMember drops every reference the channel holds to the connection
func (ch *Channel) RemoveMember(id string) {
	delete(ch.members, id)
	delete(ch.operators, id)
	delete(ch.invited, id)
}

// SetOperator grants or revokes operator status. It refuses non-members.
func (ch *Channel) SetOperator(id string, op bool) bool {
	if !ch.IsMember(id) {
		return false
	}
	if op {
		ch.operators[id] = struct{}{}
	} else {
		delete(ch.operators, id)
	}
	return true
}

// Invite lets the connection bypass invite-only on its next JOIN
func (ch *Channel) Invite(id string) {
	ch.invited[id] = struct{}{}
}

// ModeString returns the channel modes, e.g. "+itkl", and their parameters.
// The key is only included when showKey is set.
func (ch *Channel) ModeString(showKey bool) (string, []string) {
	var b strings.Builder
	var params []string

	b.WriteByte('+')
	if ch.Modes.InviteOnly {
		b.WriteByte('i')
	}
	if ch.Modes.TopicRestricted {
		b.WriteByte('t')
	}
	if ch.Modes.Key != "" {
		b.WriteByte('k')
		if showKey {
			params = append(params, ch.Modes.Key)
		}
	}
	if ch.Modes.Limit > 0 {
		b.WriteByte('l')
		params = append(params, strconv.Itoa(ch.Modes.Limit))
	}
	return b.String(), params
}
