package admind

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/presbrey/ftirc/irc/config"
	"github.com/presbrey/ftirc/irc/server"
	"github.com/stretchr/testify/require"
)

// runServer starts a real IRC server on a loopback port
func runServer(t *testing.T) (*server.Server, context.CancelFunc) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Password = "pw"

	srv := server.New(cfg, server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()
	<-srv.Ready()

	return srv, func() {
		cancel()
		<-done
	}
}
