package server

import (
	"strings"
	"testing"

	"github.com/presbrey/ftirc/irc"
	"github.com/presbrey/ftirc/irc/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegState(t *testing.T) {
	assert.Equal(t, StateNickSet, StatePasswordOK.withNick())
	assert.Equal(t, StateUserSet, StatePasswordOK.withUser())
	assert.Equal(t, StateRegistered, StateNickSet.withUser())
	assert.Equal(t, StateRegistered, StateUserSet.withNick())

	// Transitions never move backwards
	assert.Equal(t, StateRegistered, StateRegistered.withNick())
	assert.Equal(t, StateRegistered, StateRegistered.withUser())
	assert.Equal(t, StateNickSet, StateNickSet.withNick())
	assert.Equal(t, StateUnauthenticated, StateUnauthenticated.withNick())

	assert.False(t, StateUnauthenticated.PasswordVerified())
	assert.True(t, StateUserSet.PasswordVerified())
	assert.True(t, StateRegistered.HasNick())
	assert.False(t, StateUserSet.HasNick())
	assert.Equal(t, "registered", StateRegistered.String())
	assert.Equal(t, "invalid", RegState(42).String())
}

func TestRegistrationSequence(t *testing.T) {
	s := newTestServer(t)
	c := s.connectTest(t)

	c.send("PASS wrongpw")
	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, irc.ERR_PASSWDMISMATCH, msgs[0].Command)
	assert.Equal(t, StateUnauthenticated, c.State())

	c.send("PASS " + testPassword)
	assert.Empty(t, c.lines())
	assert.Equal(t, StatePasswordOK, c.State())

	c.send("NICK a!b")
	msgs = c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, irc.ERR_ERRONEUSNICKNAME, msgs[0].Command)

	c.send("NICK alice")
	assert.Empty(t, c.lines())
	assert.Equal(t, StateNickSet, c.State())

	c.send("USER a 0 * :Alice")
	msgs = c.messages()
	assert.Equal(t, 1, countCommand(msgs, irc.RPL_WELCOME))
	assert.Equal(t, []string{"001", "002", "003", "004", "005"}, commandsOf(msgs))
	assert.Equal(t, StateRegistered, c.State())
	assert.Equal(t, "Alice", c.Realname)
	assert.Contains(t, msgs[0].Trailing(), "alice!a@127.0.0.1")

	// Changing nick after registration does not resend the burst
	c.send("NICK alice2")
	assert.Equal(t, 0, countCommand(c.messages(), irc.RPL_WELCOME))
}

func commandsOf(msgs []*irc.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, msg.Command)
	}
	return out
}

func TestRegistrationUserBeforeNick(t *testing.T) {
	s := newTestServer(t)
	c := s.connectTest(t)

	c.send("PASS "+testPassword, "USER bob 0 * :Bob B")
	assert.Equal(t, StateUserSet, c.State())
	assert.Empty(t, c.lines())

	c.send("NICK bob")
	assert.Equal(t, StateRegistered, c.State())
	assert.Equal(t, "Bob B", c.Realname)
	assert.Equal(t, 1, countCommand(c.messages(), irc.RPL_WELCOME))
}

func TestPasswordGate(t *testing.T) {
	s := newTestServer(t)
	c := s.connectTest(t)

	for _, line := range []string{"NICK alice", "USER a 0 * :A", "JOIN #x", "PRIVMSG bob :hi"} {
		c.send(line)
		msgs := c.messages()
		require.Len(t, msgs, 1, line)
		assert.Equal(t, irc.ERR_PASSWDMISMATCH, msgs[0].Command, line)
		assert.Equal(t, "Password required", msgs[0].Trailing(), line)
	}
	assert.Equal(t, StateUnauthenticated, c.State())
	assert.Empty(t, c.Nickname)

	// CAP and PING are allowed before PASS
	c.send("CAP LS 302")
	assert.Equal(t, []string{"CAP"}, c.commands())
	c.send("PING " + s.Name())
	assert.Equal(t, []string{"PONG"}, c.commands())
}

func TestRegistrationGate(t *testing.T) {
	s := newTestServer(t)
	c := s.connectTest(t)
	c.send("PASS "+testPassword, "NICK alice")

	for _, line := range []string{"JOIN #x", "PRIVMSG bob :hi", "MODE alice", "FOO bar"} {
		c.send(line)
		assert.Equal(t, []string{irc.ERR_NOTREGISTERED}, c.commands(), line)
	}

	// PONG is accepted silently
	c.send("PONG :" + s.Name())
	assert.Empty(t, c.lines())
}

func TestPassRules(t *testing.T) {
	s := newTestServer(t)
	c := s.connectTest(t)

	c.send("PASS")
	assert.Equal(t, []string{irc.ERR_NEEDMOREPARAMS}, c.commands())

	c.send("PASS a b")
	assert.Equal(t, []string{irc.ERR_NEEDMOREPARAMS}, c.commands())

	c.send("PASS :" + testPassword)
	assert.Empty(t, c.lines())

	c.send("PASS " + testPassword)
	assert.Equal(t, []string{irc.ERR_ALREADYREGISTERED}, c.commands())
	assert.Equal(t, StatePasswordOK, c.State())
}

func TestPasswordHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.Password = ""
		cfg.Server.PasswordHash = string(hash)
	})
	c := s.connectTest(t)

	c.send("PASS " + testPassword)
	assert.Equal(t, []string{irc.ERR_PASSWDMISMATCH}, c.commands())

	c.send("PASS hunter2")
	assert.Empty(t, c.lines())
	assert.True(t, c.State().PasswordVerified())
}

func TestNickRules(t *testing.T) {
	s := newTestServer(t)
	alice := s.registerTest(t, "alice")
	c := s.connectTest(t)
	c.send("PASS " + testPassword)

	c.send("NICK")
	assert.Equal(t, []string{irc.ERR_NONICKNAMEGIVEN}, c.commands())

	c.send("NICK a b")
	assert.Equal(t, []string{irc.ERR_NEEDMOREPARAMS}, c.commands())

	for _, bad := range []string{"1abc", "toolongnick", "a b", "a,b", "#chan"} {
		c.send("NICK :" + bad)
		assert.Equal(t, []string{irc.ERR_ERRONEUSNICKNAME}, c.commands(), bad)
	}

	c.send("NICK alice")
	assert.Equal(t, []string{irc.ERR_NICKNAMEINUSE}, c.commands())
	assert.Empty(t, c.Nickname)

	// Nickname comparison is exact
	c.send("NICK Alice")
	assert.Empty(t, c.lines())
	assert.Equal(t, "Alice", c.Nickname)
	assert.Same(t, alice.Client, s.nicks["alice"])
	assert.Same(t, c.Client, s.nicks["Alice"])
}

func TestNickChangeReleasesOldNick(t *testing.T) {
	s := newTestServer(t)
	alice := s.registerTest(t, "alice")
	bob := s.registerTest(t, "bob")
	pending := s.connectTest(t)
	pending.send("PASS " + testPassword)

	alice.send("NICK carol")
	assert.Empty(t, alice.lines())
	assert.Nil(t, s.nicks["alice"])
	assert.Same(t, alice.Client, s.nicks["carol"])

	msgs := bob.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "NICK", msgs[0].Command)
	assert.Equal(t, "alice!alice@127.0.0.1", msgs[0].Prefix)
	assert.Equal(t, "carol", msgs[0].Param(0))

	// Unregistered connections are not told
	assert.Empty(t, pending.lines())

	bob.send("NICK alice")
	assert.Empty(t, bob.lines())
	assert.Equal(t, []string{"NICK"}, alice.commands())

	// Same nick is a no-op
	bob.send("NICK alice")
	assert.Empty(t, bob.lines())
	assert.Empty(t, alice.lines())
}

func TestUserRules(t *testing.T) {
	s := newTestServer(t)
	c := s.connectTest(t)
	c.send("PASS " + testPassword)

	c.send("USER a 0 *")
	assert.Equal(t, []string{irc.ERR_NEEDMOREPARAMS}, c.commands())

	c.send("USER a 0 * :Real Name")
	assert.Empty(t, c.lines())

	c.send("USER b 0 * :Other")
	assert.Equal(t, []string{irc.ERR_ALREADYREGISTERED}, c.commands())
	assert.Equal(t, "a", c.Username)
}

func TestUnknownCommandAndLimits(t *testing.T) {
	s := newTestServer(t)
	c := s.registerTest(t, "alice")

	c.send("FROB x")
	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, irc.ERR_UNKNOWNCOMMAND, msgs[0].Command)
	assert.Equal(t, "FROB", msgs[0].Param(1))

	// Verbs are case-insensitive
	c.send("ping " + s.Name())
	assert.Equal(t, []string{"PONG"}, c.commands())

	c.send("PRIVMSG " + strings.Repeat("x ", 16))
	msgs = c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, irc.ERR_UNKNOWNERROR, msgs[0].Command)
	assert.Equal(t, "Too many parameters", msgs[0].Trailing())

	// Lines without a verb are dropped
	c.send(":prefix.only")
	c.send("   ")
	assert.Empty(t, c.lines())
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	c := s.registerTest(t, "alice")

	c.send("PING")
	assert.Equal(t, []string{irc.ERR_NOORIGIN}, c.commands())

	c.send("PING elsewhere.net")
	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, irc.ERR_NOSUCHSERVER, msgs[0].Command)
	assert.Equal(t, "elsewhere.net", msgs[0].Param(1))

	c.send("PING :" + s.Name())
	msgs = c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "PONG", msgs[0].Command)
	assert.Equal(t, s.Name(), msgs[0].Prefix)
	assert.Equal(t, []string{s.Name(), s.Name()}, msgs[0].Params)
}

func TestCap(t *testing.T) {
	s := newTestServer(t)
	c := s.connectTest(t)

	c.send("CAP LS 302")
	assert.Equal(t, []string{"CAP * LS :"}, stripPrefix(c.lines()))

	c.send("CAP REQ :multi-prefix")
	assert.Equal(t, []string{"CAP * NAK multi-prefix"}, stripPrefix(c.lines()))

	c.send("CAP END")
	assert.Empty(t, c.lines())

	c.send("CAP BOGUS")
	assert.Equal(t, []string{irc.ERR_INVALIDCAPCMD}, c.commands())

	c.send("CAP")
	assert.Equal(t, []string{irc.ERR_NEEDMOREPARAMS}, c.commands())
}

func stripPrefix(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, ":") {
			if i := strings.IndexByte(line, ' '); i > 0 {
				line = line[i+1:]
			}
		}
		out = append(out, line)
	}
	return out
}
