package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"doc-oracle/internal/app"
	"doc-oracle/internal/httputil"
	"doc-oracle/internal/oracle"
	"doc-oracle/internal/queue"
)

func main() {
	deps, err := app.BuildIngest()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	deps.Log.Info("ingest worker starting")

	g, ctx := errgroup.WithContext(context.Background())

	// Run queue worker
	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeIngest, func(ctx context.Context, task queue.Task) error {
			return handleIngest(ctx, deps, task)
		})
	})

	// Run health check server
	g.Go(func() error {
		return httputil.ServeHealth(deps, "ingest")
	})

	// Wait for either to fail
	if err := g.Wait(); err != nil {
		deps.Log.Error("ingest worker stopped", "err", err)
	}
}

func handleIngest(ctx context.Context, deps app.Deps, task queue.Task) error {
	var payload oracle.IngestPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("decode ingest payload: %w", err)
	}
	id, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		return fmt.Errorf("parse conversation id: %w", err)
	}
	return deps.Engine.HandleIngest(ctx, id)
}
