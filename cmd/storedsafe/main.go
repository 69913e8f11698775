package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/storedsafe-tokenhandler/cmd/storedsafe/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, os.Args); err != nil {
		// Coded exits (e.g. check's invalid-token status) carry their own code
		cli.HandleExitCoder(err)

		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
