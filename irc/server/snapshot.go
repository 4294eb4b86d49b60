package server

import (
	"context"
	"sort"
	"time"
)

// Stats is a point-in-time summary of the server
type Stats struct {
	Name          string    `json:"name"`
	Network       string    `json:"network"`
	Version       string    `json:"version"`
	StartedAt     time.Time `json:"started_at"`
	Connections   int       `json:"connections"`
	Registered    int       `json:"registered"`
	Channels      int       `json:"channels"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

// ChannelInfo describes one channel
type ChannelInfo struct {
	Name      string    `json:"name"`
	Topic     string    `json:"topic,omitempty"`
	Modes     string    `json:"modes"`
	Members   []string  `json:"members"`
	Operators []string  `json:"operators"`
	CreatedAt time.Time `json:"created_at"`
}

// ClientInfo describes one connection
type ClientInfo struct {
	ID          string    `json:"id"`
	Nickname    string    `json:"nickname,omitempty"`
	Username    string    `json:"username,omitempty"`
	Hostname    string    `json:"hostname"`
	State       string    `json:"state"`
	Modes       string    `json:"modes"`
	Channels    []string  `json:"channels"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Stats returns counters read on the event loop
func (s *Server) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.do(ctx, func() {
		st = Stats{
			Name:          s.Name(),
			Network:       s.Config.Server.Network,
			Version:       Version,
			StartedAt:     s.startTime,
			Connections:   len(s.clients),
			Channels:      len(s.channels),
			UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		}
		for _, c := range s.clients {
			if c.state.Registered() {
				st.Registered++
			}
		}
	})
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

// ChannelList returns every live channel sorted by name. Keys are never
// included.
func (s *Server) ChannelList(ctx context.Context) ([]ChannelInfo, error) {
	var out []ChannelInfo
	err := s.do(ctx, func() {
		out = make([]ChannelInfo, 0, len(s.channels))
		for _, ch := range s.channels {
			modes, _ := ch.ModeString(false)
			info := ChannelInfo{
				Name:      ch.Name,
				Topic:     ch.Topic,
				Modes:     modes,
				Members:   []string{},
				Operators: []string{},
				CreatedAt: ch.CreatedAt,
			}
			for _, m := range s.members(ch) {
				info.Members = append(info.Members, m.Nickname)
				if ch.IsOperator(m.ID) {
					info.Operators = append(info.Operators, m.Nickname)
				}
			}
			out = append(out, info)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClientList returns every connection, ordered by connect time
func (s *Server) ClientList(ctx context.Context) ([]ClientInfo, error) {
	var out []ClientInfo
	err := s.do(ctx, func() {
		out = make([]ClientInfo, 0, len(s.clients))
		for _, c := range s.clients {
			out = append(out, ClientInfo{
				ID:          c.ID,
				Nickname:    c.Nickname,
				Username:    c.Username,
				Hostname:    c.Hostname,
				State:       c.state.String(),
				Modes:       c.Modes.String(),
				Channels:    c.Channels(),
				ConnectedAt: c.ConnectedAt,
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
