package irc

import (
	"strings"
)

// Message represents a single protocol line
type Message struct {
	Prefix  string
	Command string
	Params  []string
}

// NewMessage builds an outbound message
func NewMessage(prefix, command string, params ...string) *Message {
	return &Message{
		Prefix:  prefix,
		Command: command,
		Params:  params,
	}
}

// ParseMessage parses one line with its CRLF already removed. The verb is
// upper-cased. The first parameter starting with ':' takes the rest of the
// line verbatim, colon stripped, and ends parsing. Malformed input never
// fails here; check Valid on the result.
func ParseMessage(line string) *Message {
	msg := &Message{}

	if strings.HasPrefix(line, ":") {
		i := strings.IndexByte(line, ' ')
		if i < 0 {
			msg.Prefix = line[1:]
			return msg
		}
		msg.Prefix = line[1:i]
		line = line[i+1:]
	}

	line = trimSpace(line)
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		msg.Command, line = line[:i], line[i:]
	} else {
		msg.Command, line = line, ""
	}
	msg.Command = strings.ToUpper(msg.Command)

	for {
		line = trimSpace(line)
		if line == "" {
			break
		}
		if line[0] == ':' {
			msg.Params = append(msg.Params, line[1:])
			break
		}
		i := strings.IndexAny(line, " \t")
		if i < 0 {
			msg.Params = append(msg.Params, line)
			break
		}
		msg.Params = append(msg.Params, line[:i])
		line = line[i:]
	}

	return msg
}

func trimSpace(s string) string {
	return strings.TrimLeft(s, " \t")
}

// Valid reports whether the message carries a verb and may be dispatched
func (m *Message) Valid() bool {
	return m != nil && m.Command != ""
}

// Param returns the i-th parameter or "" when absent
func (m *Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Trailing returns the last parameter or "" when there are none
func (m *Message) Trailing() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}

// String formats the message for the wire, without CRLF
func (m *Message) String() string {
	var builder strings.Builder

	if m.Prefix != "" {
		builder.WriteString(":")
		builder.WriteString(m.Prefix)
		builder.WriteString(" ")
	}

	builder.WriteString(m.Command)

	for i, param := range m.Params {
		builder.WriteString(" ")

		// The last parameter needs a colon if it would not survive tokenization
		if i == len(m.Params)-1 && needsColon(param) {
			builder.WriteString(":")
		}
		builder.WriteString(param)
	}

	return builder.String()
}

func needsColon(param string) bool {
	return param == "" || strings.ContainsAny(param, " \t") || strings.HasPrefix(param, ":")
}

// FormatHostmask formats a full identifier
func FormatHostmask(nick, user, host string) string {
	return nick + "!" + user + "@" + host
}

// SplitList splits a comma separated target list, dropping empty entries
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
