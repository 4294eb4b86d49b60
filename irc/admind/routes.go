package admind

import (
	"errors"
	"net/http"
	"net/url"
	"slices"

	"github.com/labstack/echo/v4"
	"github.com/presbrey/ftirc/irc/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) route(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})))

	api := e.Group("/api")
	api.GET("/stats", s.handleStats)
	api.GET("/channels", s.handleChannels)
	api.GET("/channels/:name", s.handleChannel)
	api.GET("/clients", s.handleClients)
}

func (s *Server) handleHealth(c echo.Context) error {
	if _, err := s.source.Stats(c.Request().Context()); err != nil {
		return s.unavailable(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.source.Stats(c.Request().Context())
	if err != nil {
		return s.unavailable(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleChannels(c echo.Context) error {
	channels, err := s.source.ChannelList(c.Request().Context())
	if err != nil {
		return s.unavailable(err)
	}
	return c.JSON(http.StatusOK, channels)
}

// handleChannel looks up one channel. Route parameters cannot carry a raw
// '#', so the sigil may be omitted and '#' is assumed.
func (s *Server) handleChannel(c echo.Context) error {
	name, err := url.PathUnescape(c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid channel name")
	}
	channels, err := s.source.ChannelList(c.Request().Context())
	if err != nil {
		return s.unavailable(err)
	}
	for _, ch := range channels {
		if ch.Name == name || ch.Name == "#"+name {
			return c.JSON(http.StatusOK, ch)
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "channel not found")
}

// handleClients lists connections, optionally filtered by registration
// state and joined channel
func (s *Server) handleClients(c echo.Context) error {
	var q clientQuery
	if err := c.Bind(&q); err != nil {
		return err
	}
	if err := c.Validate(&q); err != nil {
		return err
	}

	clients, err := s.source.ClientList(c.Request().Context())
	if err != nil {
		return s.unavailable(err)
	}

	out := make([]server.ClientInfo, 0, len(clients))
	for _, info := range clients {
		if q.State != "" && info.State != q.State {
			continue
		}
		if q.Channel != "" && !slices.Contains(info.Channels, q.Channel) {
			continue
		}
		out = append(out, info)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) unavailable(err error) error {
	if errors.Is(err, server.ErrServerClosed) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server closed")
	}
	s.log.Warn("snapshot failed", "err", err)
	return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
}
