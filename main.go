package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"hlsgrab/cli"
	"hlsgrab/logger"
	"hlsgrab/util"
)

func main() {
	// the first signal cancels the download, which then stops cleanly
	// and keeps its checkpoint for the next run
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.NewRootCmd().ExecuteContext(ctx)

	cancel()
	util.CleanupOpenFiles()
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
