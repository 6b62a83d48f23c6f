// Command gateway runs the admin HTTP surface (health, metrics, manual
// tick trigger) and the scheduler's tick loop in a single process, for
// deployments that don't split them across cmd/gateway and cmd/worker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/paynet/ebics-gateway/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: failed to start: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.Scheduler.Run(ctx)

	srv := &http.Server{
		Addr:         ":" + a.Config.App.Port,
		Handler:      a.Admin,
		ReadTimeout:  a.Config.App.HTTPTimeout,
		WriteTimeout: a.Config.App.HTTPTimeout,
	}

	go func() {
		a.Logger.Info("admin http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("admin http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	a.Logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("admin http server shutdown error", zap.Error(err))
	}

	a.Logger.Info("gateway stopped")
}
