package irc

// Numeric replies used by the server. Names follow RFC 2812.
const (
	RPL_WELCOME  = "001"
	RPL_YOURHOST = "002"
	RPL_CREATED  = "003"
	RPL_MYINFO   = "004"
	RPL_ISUPPORT = "005"

	RPL_UMODEIS       = "221"
	RPL_ENDOFWHO      = "315"
	RPL_LISTSTART     = "321"
	RPL_LIST          = "322"
	RPL_LISTEND       = "323"
	RPL_CHANNELMODEIS = "324"
	RPL_CREATIONTIME  = "329"
	RPL_NOTOPIC       = "331"
	RPL_TOPIC         = "332"
	RPL_TOPICWHOTIME  = "333"
	RPL_INVITING      = "341"
	RPL_WHOREPLY      = "352"
	RPL_NAMREPLY      = "353"
	RPL_ENDOFNAMES    = "366"

	ERR_UNKNOWNERROR      = "400"
	ERR_NOSUCHNICK        = "401"
	ERR_NOSUCHSERVER      = "402"
	ERR_NOSUCHCHANNEL     = "403"
	ERR_CANNOTSENDTOCHAN  = "404"
	ERR_TOOMANYCHANNELS   = "405"
	ERR_NOORIGIN          = "409"
	ERR_INVALIDCAPCMD     = "410"
	ERR_NORECIPIENT       = "411"
	ERR_NOTEXTTOSEND      = "412"
	ERR_INPUTTOOLONG      = "417"
	ERR_UNKNOWNCOMMAND    = "421"
	ERR_NONICKNAMEGIVEN   = "431"
	ERR_ERRONEUSNICKNAME  = "432"
	ERR_NICKNAMEINUSE     = "433"
	ERR_USERNOTINCHANNEL  = "441"
	ERR_NOTONCHANNEL      = "442"
	ERR_USERONCHANNEL     = "443"
	ERR_NOTREGISTERED     = "451"
	ERR_NEEDMOREPARAMS    = "461"
	ERR_INVALIDMODEPARAM  = "696"
	ERR_ALREADYREGISTERED = "462"
	ERR_PASSWDMISMATCH    = "464"
	ERR_CHANNELISFULL     = "471"
	ERR_INVITEONLYCHAN    = "473"
	ERR_BADCHANNELKEY     = "475"
	ERR_BADCHANMASK       = "476"
	ERR_NOPRIVILEGES      = "481"
	ERR_CHANOPRIVSNEEDED  = "482"
	ERR_UMODEUNKNOWNFLAG  = "501"
	ERR_USERSDONTMATCH    = "502"
)

// IsError reports whether a numeric is an error reply
func IsError(numeric string) bool {
	return len(numeric) == 3 && (numeric[0] == '4' || numeric[0] == '5') || numeric == ERR_INVALIDMODEPARAM
}
