package server

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/presbrey/ftirc/irc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrivmsgToUser(t *testing.T) {
	s := newTestServer(t)
	alice := s.registerTest(t, "alice")
	bob := s.registerTest(t, "bob")

	alice.send("PRIVMSG bob :hello there")
	assert.Empty(t, alice.lines())

	msgs := bob.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice!alice@127.0.0.1", msgs[0].Prefix)
	assert.Equal(t, "PRIVMSG", msgs[0].Command)
	assert.Equal(t, []string{"bob", "hello there"}, msgs[0].Params)

	// Target lookup is exact
	alice.send("PRIVMSG Bob :hi")
	assert.Equal(t, []string{irc.ERR_NOSUCHNICK}, alice.commands())
}

func TestPrivmsgToChannel(t *testing.T) {
	s := newTestServer(t)
	alice := s.registerTest(t, "alice")
	bob := s.registerTest(t, "bob")
	carol := s.registerTest(t, "carol")
	alice.send("JOIN #room")
	bob.send("JOIN #room")
	alice.lines()
	bob.lines()

	alice.send("PRIVMSG #room :hi all")
	assert.Empty(t, alice.lines(), "sender is not echoed")
	msgs := bob.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"#room", "hi all"}, msgs[0].Params)

	carol.send("PRIVMSG #room :let me in")
	assert.Equal(t, []string{irc.ERR_CANNOTSENDTOCHAN}, carol.commands())
	assert.Empty(t, bob.lines())

	carol.send("PRIVMSG #nowhere :hello")
	assert.Equal(t, []string{irc.ERR_NOSUCHCHANNEL}, carol.commands())
}

func TestPrivmsgTargetList(t *testing.T) {
	s := newTestServer(t)
	alice := s.registerTest(t, "alice")
	bob := s.registerTest(t, "bob")
	carol := s.registerTest(t, "carol")

	alice.send("PRIVMSG bob,nobody,carol :multi")
	assert.Equal(t, []string{irc.ERR_NOSUCHNICK}, alice.commands())
	assert.Equal(t, []string{"PRIVMSG"}, bob.commands())
	assert.Equal(t, []string{"PRIVMSG"}, carol.commands())
}

func TestPrivmsgErrors(t *testing.T) {
	s := newTestServer(t)
	alice := s.registerTest(t, "alice")
	s.registerTest(t, "bob")

	alice.send("PRIVMSG")
	assert.Equal(t, []string{irc.ERR_NORECIPIENT}, alice.commands())

	alice.send("PRIVMSG bob")
	assert.Equal(t, []string{irc.ERR_NOTEXTTOSEND}, alice.commands())

	alice.send("PRIVMSG bob :")
	assert.Equal(t, []string{irc.ERR_NOTEXTTOSEND}, alice.commands())
}

func TestNoticeIsSilent(t *testing.T) {
	s := newTestServer(t)
	alice := s.registerTest(t, "alice")
	bob := s.registerTest(t, "bob")

	for _, line := range []string{"NOTICE", "NOTICE bob", "NOTICE nobody :x", "NOTICE #nowhere :x"} {
		alice.send(line)
		assert.Empty(t, alice.lines(), line)
	}

	alice.send("NOTICE bob :ping")
	msgs := bob.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "NOTICE", msgs[0].Command)
	assert.Equal(t, "ping", msgs[0].Trailing())
}

func TestWho(t *testing.T) {
	s := newTestServer(t)
	alice := s.registerTest(t, "alice")
	bob := s.registerTest(t, "bob")
	carol := s.registerTest(t, "carol")
	alice.send("JOIN #room")
	bob.send("JOIN #room", "MODE bob +i")
	alice.lines()
	bob.lines()

	alice.send("WHO #room")
	msgs := alice.messages()
	require.Equal(t, []string{irc.RPL_WHOREPLY, irc.RPL_WHOREPLY, irc.RPL_ENDOFWHO}, commandsOf(msgs))
	assert.Equal(t, []string{"alice", "#room", "alice", "127.0.0.1", s.Name(), "alice", "H@", "0 alice Test"}, msgs[0].Params)
	assert.Equal(t, "bob", msgs[1].Param(5))
	assert.Equal(t, "H", msgs[1].Param(6))
	assert.Equal(t, "#room", msgs[2].Param(1))

	// Invisible members are hidden from outsiders
	carol.send("WHO #room")
	msgs = carol.messages()
	require.Equal(t, []string{irc.RPL_WHOREPLY, irc.RPL_ENDOFWHO}, commandsOf(msgs))
	assert.Equal(t, "alice", msgs[0].Param(5))

	carol.send("WHO")
	msgs = carol.messages()
	assert.Equal(t, 2, countCommand(msgs, irc.RPL_WHOREPLY), "bob is invisible")
	assert.Equal(t, "*", msgs[len(msgs)-1].Param(1))

	carol.send("WHO bob")
	assert.Equal(t, []string{irc.RPL_WHOREPLY, irc.RPL_ENDOFWHO}, carol.commands())

	carol.send("WHO #nowhere")
	assert.Equal(t, []string{irc.RPL_ENDOFWHO}, carol.commands())
}

func TestTruncateLine(t *testing.T) {
	assert.Equal(t, "short", truncateLine("short", 10))
	assert.Equal(t, "abc", truncateLine("abcdef", 3))
	// "é" is two bytes; a cut inside it backs up to the rune start
	assert.Equal(t, "aé", truncateLine("aéé", 4))
	assert.Equal(t, "aé", truncateLine("aéé", 3))
	assert.Equal(t, "", truncateLine("ééé", 1))
}

func TestRelayedLineKeepsRunesWhole(t *testing.T) {
	s := newTestServer(t)
	alice := s.registerTest(t, "alice")
	bob := s.registerTest(t, "bob")

	// Fits inbound, overflows once the sender prefix is added
	text := "x" + strings.Repeat("é", 247)
	alice.send("PRIVMSG bob :" + text)
	assert.Empty(t, alice.lines())

	lines := bob.lines()
	require.Len(t, lines, 1)
	assert.LessOrEqual(t, len(lines[0]), irc.MaxLineLength-2)
	assert.True(t, utf8.ValidString(lines[0]), "truncation split a rune")
	assert.True(t, strings.HasPrefix(lines[0], ":alice!alice@127.0.0.1 PRIVMSG bob :xé"))
}
