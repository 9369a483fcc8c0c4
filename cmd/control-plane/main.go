// Control plane exposes the queue workspace over HTTP for operators:
// enqueue, stats, deadletter inspection and requeue, health probes, and
// Prometheus metrics. It never executes tasks.
//
// This binary is intended to be run as a standalone process.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/duraq/duraq/internal/api"
	"github.com/duraq/duraq/internal/config"
	"github.com/duraq/duraq/internal/observability"
)

func main() {
	_ = godotenv.Load()

	logger := observability.NewLogger("control-plane")

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(os.Getenv("DURAQ_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}

	server := api.NewServer(cfg, logger)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "workspace", cfg.Workspace)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)
}
