// Command worker runs only the scheduler's tick loop, no HTTP surface —
// the split deployment counterpart to cmd/gateway.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/paynet/ebics-gateway/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: failed to start: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.Logger.Info("worker started", zap.Duration("tick_interval", a.Config.Scheduler.TickInterval))
	go a.Scheduler.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	a.Logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	a.Logger.Info("worker stopped")
}
