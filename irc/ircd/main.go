package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/presbrey/ftirc/envtree"
)

func main() {
	// .env files must be in the environment before flags read their sources
	if err := envtree.New(&envtree.Config{Silent: true}).Load(); err != nil {
		fmt.Fprintf(os.Stderr, "ircd: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ircd: %v\n", err)
		os.Exit(1)
	}
}
