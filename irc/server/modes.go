package server

import (
	"strconv"
	"strings"

	"github.com/presbrey/ftirc/irc"
)

// maxModeArgs caps the argument-consuming letters processed per MODE command
const maxModeArgs = 3

// channelModeLetters lists every channel mode, as advertised in RPL_MYINFO
const channelModeLetters = "iklot"

// channelMode is the contract of one channel mode letter.
type channelMode struct {
	// takesArg reports whether the letter consumes an argument in the
	// given direction.
	takesArg func(adding bool) bool

	// apply changes the channel and returns the argument to echo in the
	// MODE notice. ok is false when nothing was applied.
	apply func(s *Server, c *Client, ch *Channel, adding bool, arg string) (echo string, ok bool)
}

func never(bool) bool        { return false }
func always(bool) bool       { return true }
func whenAdding(a bool) bool { return a }

var channelModes = map[byte]channelMode{
	'i': {
		takesArg: never,
		apply: func(_ *Server, _ *Client, ch *Channel, adding bool, _ string) (string, bool) {
			ch.Modes.InviteOnly = adding
			return "", true
		},
	},
	't': {
		takesArg: never,
		apply: func(_ *Server, _ *Client, ch *Channel, adding bool, _ string) (string, bool) {
			ch.Modes.TopicRestricted = adding
			return "", true
		},
	},
	'k': {
		takesArg: whenAdding,
		apply: func(_ *Server, c *Client, ch *Channel, adding bool, arg string) (string, bool) {
			if !adding {
				ch.Modes.Key = ""
				return "", true
			}
			if arg == "" {
				c.SendNumeric(irc.ERR_NEEDMOREPARAMS, "MODE", "Not enough parameters")
				return "", false
			}
			ch.Modes.Key = arg
			return arg, true
		},
	},
	'l': {
		takesArg: whenAdding,
		apply: func(_ *Server, c *Client, ch *Channel, adding bool, arg string) (string, bool) {
			if !adding {
				ch.Modes.Limit = 0
				return "", true
			}
			n, err := strconv.Atoi(arg)
			if err != nil || n <= 0 {
				c.SendNumeric(irc.ERR_INVALIDMODEPARAM, ch.Name, "l", arg, "Invalid limit")
				return "", false
			}
			ch.Modes.Limit = n
			return strconv.Itoa(n), true
		},
	},
	'o': {
		takesArg: always,
		apply: func(s *Server, c *Client, ch *Channel, adding bool, arg string) (string, bool) {
			target := s.nicks[arg]
			if target == nil {
				c.SendNumeric(irc.ERR_NOSUCHNICK, arg, "No such nick/channel")
				return "", false
			}
			if !ch.SetOperator(target.ID, adding) {
				c.SendNumeric(irc.ERR_USERNOTINCHANNEL, arg, ch.Name, "They aren't on that channel")
				return "", false
			}
			return arg, true
		},
	},
}

type modeChange struct {
	adding bool
	letter byte
	arg    string
}

// applyChannelModes scans modestr left to right and applies each letter
// immediately. Accepted changes are announced to the channel in one MODE
// notice.
func (s *Server) applyChannelModes(c *Client, ch *Channel, modestr string, args []string) {
	adding := true
	consumed := 0
	var changes []modeChange

scan:
	for i := 0; i < len(modestr); i++ {
		letter := modestr[i]
		switch letter {
		case '+':
			adding = true
			continue
		case '-':
			adding = false
			continue
		}

		mode, ok := channelModes[letter]
		if !ok {
			c.SendNumeric(irc.ERR_UMODEUNKNOWNFLAG, string(letter), "is unknown mode char to me")
			continue
		}

		var arg string
		takesArg := mode.takesArg(adding)
		if takesArg {
			if len(args) == 0 {
				c.SendNumeric(irc.ERR_NEEDMOREPARAMS, "MODE", "Not enough parameters")
				continue
			}
			arg, args = args[0], args[1:]
			consumed++
		}

		if echo, ok := mode.apply(s, c, ch, adding, arg); ok {
			changes = append(changes, modeChange{adding: adding, letter: letter, arg: echo})
		}

		// The rest of the string is ignored once the argument budget is spent
		if takesArg && consumed == maxModeArgs {
			break scan
		}
	}

	if len(changes) == 0 {
		return
	}
	modes, params := formatModeChanges(changes)
	s.broadcast(ch, irc.NewMessage(c.Hostmask(), "MODE", append([]string{ch.Name, modes}, params...)...), nil)
}

func formatModeChanges(changes []modeChange) (string, []string) {
	var b strings.Builder
	var params []string
	var sign byte

	for _, change := range changes {
		next := byte('-')
		if change.adding {
			next = '+'
		}
		if next != sign {
			b.WriteByte(next)
			sign = next
		}
		b.WriteByte(change.letter)
		if change.arg != "" {
			params = append(params, change.arg)
		}
	}
	return b.String(), params
}

// applyUserModes handles MODE on the issuer's own nickname. Users may not
// give themselves +o nor remove -r.
func (s *Server) applyUserModes(c *Client, modestr string) {
	adding := true
	unknown := false
	var changes []modeChange

	for i := 0; i < len(modestr); i++ {
		letter := modestr[i]
		switch {
		case letter == '+':
			adding = true
			continue
		case letter == '-':
			adding = false
			continue
		case letter == 'o' && adding, letter == 'r' && !adding:
			continue
		}

		changed, known := c.Modes.Set(letter, adding)
		if !known {
			unknown = true
			continue
		}
		if changed {
			changes = append(changes, modeChange{adding: adding, letter: letter})
		}
	}

	if unknown {
		c.SendNumeric(irc.ERR_UMODEUNKNOWNFLAG, "Unknown MODE flag")
	}
	if len(changes) > 0 {
		modes, _ := formatModeChanges(changes)
		c.SendMessage(c.Nickname, "MODE", c.Nickname, modes)
	}
}
