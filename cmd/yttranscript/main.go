package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mediascribe/internal/cli"
	"mediascribe/internal/domain"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := cli.NewTranscriptFetcherCommand(cli.DefaultDeps()).ExecuteContext(ctx)
	stop()
	os.Exit(domain.ExitCode(err))
}
