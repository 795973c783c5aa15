package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/stayflow/gateway/internal/pkg/config"
	"github.com/stayflow/gateway/internal/pkg/logger"
	"github.com/stayflow/gateway/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file, using environment variables")
	}

	// Initialize logger
	if err := logger.Init(zap.InfoLevel, zap.String("service", "stayflow-gateway")); err != nil {
		return err
	}
	zlog := logger.Log
	defer zlog.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize observability
	otelShutdown, err := server.InitObservability("stayflow-gateway", ":"+cfg.MetricsPort, zlog)
	if err != nil {
		return err
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			zlog.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}()

	// Create server
	srv, err := server.New(cfg, zlog)
	if err != nil {
		return err
	}
	defer srv.Close()

	// Setup router
	router, handlers := server.SetupRouter(srv.GetDBPool(), cfg, zlog)
	srv.SetRouter(router)

	// Background sweepers: expired cache rows and stale governor windows.
	sweepCtx, stopSweepers := context.WithCancel(context.Background())
	defer stopSweepers()
	handlers.Store.StartSweeper(sweepCtx, 5*time.Minute)
	handlers.Governor.StartSweeper(sweepCtx, time.Minute)

	// Start pprof server (on separate port, not exposed publicly)
	server.StartPprofServer(":6060", zlog)

	// Create HTTP server
	httpServer := srv.HTTPServer()

	// Setup graceful shutdown
	done := make(chan bool, 1)
	go server.GracefulShutdown(httpServer, zlog, done)

	// Start server
	zlog.Info("Server starting", zap.String("port", cfg.ServerPort))
	if err := httpServer.ListenAndServe(); err != nil {
		zlog.Error("Server error", zap.Error(err))
	}

	// Wait for graceful shutdown to complete
	<-done
	zlog.Info("Graceful shutdown complete")

	return nil
}
