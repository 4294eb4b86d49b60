package server

// EventKind names a server lifecycle event
type EventKind string

const (
	EventConnect        EventKind = "connect"
	EventRegister       EventKind = "register"
	EventNick           EventKind = "nick"
	EventJoin           EventKind = "join"
	EventPart           EventKind = "part"
	EventKick           EventKind = "kick"
	EventQuit           EventKind = "quit"
	EventChannelCreate  EventKind = "channel_create"
	EventChannelDestroy EventKind = "channel_destroy"
)

// Event is passed to hooks registered on Server.Events. Hooks run on the
// event loop goroutine, may read server state, and must not block.
type Event struct {
	Kind    EventKind
	Server  *Server
	Client  *Client
	Channel *Channel

	// Detail is the old nickname for EventNick and the reason for
	// EventPart, EventKick and EventQuit
	Detail string
}

func (s *Server) emit(kind EventKind, c *Client, ch *Channel, detail string) {
	// Failures are logged by the registry and never affect the protocol
	_ = s.Events.Run(&Event{
		Kind:    kind,
		Server:  s,
		Client:  c,
		Channel: ch,
		Detail:  detail,
	})
}
