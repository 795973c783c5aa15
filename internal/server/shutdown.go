package server

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// shutdownGrace bounds how long in-flight requests may run after a signal.
const shutdownGrace = 5 * time.Second

// GracefulShutdown drains the HTTP server on SIGINT/SIGTERM and signals done
// once the listener has closed. A second signal forces immediate exit.
func GracefulShutdown(srv *http.Server, logger *zap.Logger, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info("shutdown signal received, draining requests",
		zap.Duration("grace", shutdownGrace))
	stop()

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Error("forced shutdown with requests still in flight", zap.Error(err))
	}
	logger.Info("http server stopped")

	done <- true
}
