package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// func main {{{

func main() {
	// Set the time logging format
	zerolog.TimeFieldFormat = time.RFC3339

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := &app{
		out: os.Stdout,
	}

	err := newRootCmd(a).ExecuteContext(ctx)

	a.Close()
	stop()

	if err != nil {
		os.Exit(1)
	}
} // }}}
