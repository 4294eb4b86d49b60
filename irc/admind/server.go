// Package admind serves the read-only admin and metrics HTTP surface of an
// IRC server.
package admind

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/presbrey/ftirc/irc/server"
	"github.com/prometheus/client_golang/prometheus"
)

// Source provides the snapshots exposed over HTTP. *server.Server
// implements it.
type Source interface {
	Stats(ctx context.Context) (server.Stats, error)
	ChannelList(ctx context.Context) ([]server.ChannelInfo, error)
	ClientList(ctx context.Context) ([]server.ClientInfo, error)
}

// Server is the admin HTTP server
type Server struct {
	source   Source
	registry *prometheus.Registry
	log      *slog.Logger

	echoServer *echo.Echo
	metrics    *httpMetrics
	onceSetup  sync.Once
}

// New creates an admin server. HTTP metrics are registered on registry,
// which is also the one exposed at /metrics.
func New(source Source, registry *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		source:   source,
		registry: registry,
		log:      logger.With("component", "admind"),
	}
}

func (s *Server) setup() {
	s.onceSetup.Do(func() {
		s.metrics = newHTTPMetrics(s.registry)

		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		e.Validator = newRequestValidator()
		e.Use(s.metrics.middleware(func(c echo.Context) bool {
			return c.Path() == "/metrics"
		}))
		s.route(e)
		s.echoServer = e
	})
}

// Handler returns the HTTP handler, mostly for tests
func (s *Server) Handler() http.Handler {
	s.setup()
	return s.echoServer
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.setup()
	s.log.Info("admin listening", "addr", addr)
	if err := s.echoServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	s.setup()
	return s.echoServer.Shutdown(ctx)
}
