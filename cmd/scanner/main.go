package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tibiamarket/tracker/cmd/scanner/commands"
	"github.com/tibiamarket/tracker/internal/logging"
)

func main() {
	logging.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.ExecuteContext(ctx)
}
