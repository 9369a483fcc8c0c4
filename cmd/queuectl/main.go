// queuectl is the operator CLI for a queue workspace: enqueue a task,
// inspect stats, list the deadletter, and requeue deadlettered tasks.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/duraq/duraq/internal/config"
	"github.com/duraq/duraq/internal/observability"
	"github.com/duraq/duraq/internal/store"
)

func main() {
	_ = godotenv.Load()

	worker := flag.String("worker", "", "worker name (required)")
	workspace := flag.String("workspace", "", "workspace root (overrides config/env)")
	configPath := flag.String("config", "", "optional YAML config file")

	stats := flag.Bool("stats", false, "print queue stats")
	deadletter := flag.Bool("deadletter", false, "list deadletter entries")
	retry := flag.Bool("retry", false, "requeue deadlettered tasks")
	taskID := flag.String("task-id", "", "restrict -retry to one task id")

	enqueue := flag.Bool("enqueue", false, "enqueue a task")
	enqueueID := flag.String("id", "", "task id for -enqueue")
	payload := flag.String("payload", "{}", "JSON payload for -enqueue")
	maxAttempts := flag.Int("max-attempts", 0, "attempt budget for -enqueue (0 = policy default)")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"Usage: %s -worker <name> [ -stats | -deadletter | -retry [-task-id <id>] | -enqueue -id <id> [-payload <json>] ]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *worker == "" {
		flag.Usage()
		os.Exit(2)
	}

	actions := 0
	for _, set := range []bool{*stats, *deadletter, *retry, *enqueue} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		fmt.Fprintln(os.Stderr, "error: exactly one of -stats, -deadletter, -retry, -enqueue must be specified")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *workspace != "" {
		cfg.Workspace = *workspace
	}

	logger := observability.NewLogger("queuectl")

	queue, err := store.New(cfg.Workspace, *worker, cfg.Policy(), store.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	switch {
	case *stats:
		s, err := queue.Stats(ctx)
		if err != nil {
			log.Fatal(err)
		}
		printJSON(s)

	case *deadletter:
		items, err := queue.DeadletterList(ctx)
		if err != nil {
			log.Fatal(err)
		}
		printJSON(map[string]any{"items": items})

	case *retry:
		requeued, err := queue.DeadletterRequeue(ctx, *taskID)
		if err != nil {
			log.Fatal(err)
		}
		printJSON(map[string]any{"requeued": requeued})

	case *enqueue:
		if *enqueueID == "" {
			fmt.Fprintln(os.Stderr, "error: -enqueue requires -id")
			os.Exit(2)
		}

		var body map[string]any
		if err := json.Unmarshal([]byte(*payload), &body); err != nil {
			log.Fatalf("invalid -payload: %v", err)
		}

		created, err := queue.Enqueue(ctx, store.Task{
			TaskID:      *enqueueID,
			Payload:     body,
			MaxAttempts: *maxAttempts,
		})
		if err != nil {
			log.Fatal(err)
		}
		printJSON(map[string]any{"task_id": *enqueueID, "enqueued": created})
	}
}

func printJSON(v any) {
	out, err := json.Marshal(v)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(out))
}
