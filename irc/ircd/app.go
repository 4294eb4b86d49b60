package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/lmittmann/tint"
	"github.com/presbrey/ftirc/irc/admind"
	"github.com/presbrey/ftirc/irc/config"
	"github.com/presbrey/ftirc/irc/server"
	"github.com/urfave/cli/v3"
)

var errUsage = errors.New("usage: ircd [flags] <port> <password>")

func newCommand() *cli.Command {
	return &cli.Command{
		Name:      "ircd",
		Usage:     "password protected IRC server",
		ArgsUsage: "<port> <password>",
		Version:   server.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "configuration file or http(s) URL", Sources: cli.EnvVars("IRCD_CONFIG")},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging", Sources: cli.EnvVars("IRCD_DEBUG")},
			&cli.StringFlag{Name: "admin", Usage: "serve the admin HTTP API on this address, e.g. 127.0.0.1:8080"},
			&cli.StringFlag{Name: "log-format", Usage: "log format, text or json"},
		},
		Action: run,
	}
}

// buildConfig loads the configuration source, then applies positional
// arguments and flags on top and validates the result
func buildConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	args := cmd.Args()
	if args.Len() > 2 {
		return nil, errUsage
	}
	if args.Len() > 0 {
		port, err := strconv.Atoi(args.Get(0))
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", args.Get(0))
		}
		cfg.Server.Port = port
	}
	if args.Len() > 1 {
		cfg.Server.Password = args.Get(1)
		cfg.Server.PasswordHash = ""
	}

	if cmd.Bool("debug") {
		cfg.Log.Level = "debug"
	}
	if format := cmd.String("log-format"); format != "" {
		cfg.Log.Format = format
	}
	if addr := cmd.String("admin"); addr != "" {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid admin address %q: %w", addr, err)
		}
		cfg.Admin.Port, err = strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid admin port %q", port)
		}
		cfg.Admin.Host = host
		cfg.Admin.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrNoPassword) {
			return nil, fmt.Errorf("%w: %w", errUsage, err)
		}
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      cfg.LogLevel(),
		TimeFormat: time.DateTime,
		NoColor:    cfg.Log.NoColor,
	}))
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)
	if cfg.Source != "" {
		logger.Info("configuration loaded", "source", cfg.Source)
	}

	srv := server.New(cfg, server.WithLogger(logger))

	if cfg.Admin.Enabled {
		admin := admind.New(srv, srv.Metrics.Registry, logger)
		go func() {
			if err := admin.Start(cfg.GetAdminListenAddress()); err != nil {
				logger.Error("admin server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := admin.Shutdown(shutdownCtx); err != nil {
				logger.Warn("admin shutdown", "err", err)
			}
		}()
	}

	return srv.ListenAndServe(ctx)
}
