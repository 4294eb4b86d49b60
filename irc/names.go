package irc

import "strings"

const (
	// MaxNickLength bounds nicknames
	MaxNickLength = 9

	// MaxChannelLength bounds channel names, sigil included
	MaxChannelLength = 50

	// ChannelSigils are the leading characters of a channel name
	ChannelSigils = "&#+!"

	nickSpecial = "[]\\`_^{|}"
)

// IsValidNickname checks the nickname grammar: at most 9 characters, a
// letter or special first, then letters, digits, '-' or specials.
func IsValidNickname(nick string) bool {
	if nick == "" || len(nick) > MaxNickLength {
		return false
	}

	for i := 0; i < len(nick); i++ {
		ch := nick[i]
		switch {
		case isLetter(ch), strings.IndexByte(nickSpecial, ch) >= 0:
		case i > 0 && (isDigit(ch) || ch == '-'):
		default:
			return false
		}
	}

	return true
}

// IsChannelName reports whether name starts with a channel sigil. It does
// not validate the rest of the name.
func IsChannelName(name string) bool {
	return name != "" && strings.IndexByte(ChannelSigils, name[0]) >= 0
}

// IsValidChannelName checks the full channel-name syntax
func IsValidChannelName(name string) bool {
	if !IsChannelName(name) || len(name) < 2 || len(name) > MaxChannelLength {
		return false
	}

	// No spaces, commas, BEL, or line control characters
	return !strings.ContainsAny(name, " ,\a\x00\r\n")
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
