// Command histrag chunks, indexes and queries the history of Enghien.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"histrag/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
