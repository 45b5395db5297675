package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/DeafMist/issue-harvester/pipeline/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := commands.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
