// Worker runs one registered handler against its filesystem queue.
//
// Responsibilities:
//   - Poll the worker's inbox for leasable tasks
//   - Execute tasks through the handler, in parallel when asked
//   - Report completion or failure back to the queue backend
//   - Respect cancellation: finish in-flight tasks, then exit
//
// Any number of worker processes may point at the same workspace and
// worker name; the lease protocol keeps them from colliding.
//
// This binary is intended to be run as a standalone process.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/duraq/duraq/internal/config"
	"github.com/duraq/duraq/internal/observability"
	"github.com/duraq/duraq/internal/runner"
	"github.com/duraq/duraq/internal/store"
)

func main() {
	_ = godotenv.Load()

	workerName := flag.String("worker", "", "worker name (required, must have a registered handler)")
	configPath := flag.String("config", "", "optional YAML config file")
	workspace := flag.String("workspace", "", "workspace root (overrides config)")
	once := flag.Bool("once", false, "process one bounded batch, then exit")
	maxTasks := flag.Int("max-tasks", 0, "batch bound for -once (default 1)")
	parallel := flag.Int("parallel", 0, "concurrent handler executions (overrides config)")
	every := flag.Duration("every", 0, "fixed interval between batches (continuous mode)")
	leaseFor := flag.Duration("lease", 0, "lease duration (overrides config)")
	flag.Parse()

	if *workerName == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := observability.NewLogger("worker")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *workspace != "" {
		cfg.Workspace = *workspace
	}
	if *parallel > 0 {
		cfg.Parallel = *parallel
	}
	if *leaseFor > 0 {
		cfg.LeaseDuration = config.Duration(*leaseFor)
	}

	registry := runner.DefaultRegistry()
	handler, err := registry.Lookup(*workerName)
	if err != nil {
		log.Fatal(err)
	}

	queue, err := store.New(cfg.Workspace, *workerName, cfg.Policy(), store.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}

	r, err := runner.New(queue, handler, runner.Config{
		Once:          *once,
		MaxTasks:      *maxTasks,
		Parallel:      cfg.Parallel,
		LeaseDuration: cfg.LeaseDuration.Std(),
		PollInterval:  cfg.PollInterval.Std(),
		Every:         *every,
	}, logger)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	started := time.Now()
	processed, err := r.Run(ctx)
	if err != nil {
		log.Fatal(err)
	}

	out, _ := json.Marshal(map[string]any{
		"worker":     *workerName,
		"processed":  processed,
		"elapsed_ms": time.Since(started).Milliseconds(),
	})
	fmt.Println(string(out))
}
