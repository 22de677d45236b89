package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// exitInterrupted follows the shell convention for SIGINT.
const exitInterrupted = 130

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	interrupted := ctx.Err() != nil
	stop()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && interrupted:
		os.Exit(exitInterrupted)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
