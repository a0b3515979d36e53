// Command locetl ingests hazard-model outputs into the LOC hierarchy.
//
// Usage:
//
//	locetl ingest [--dry-run] [--migrate] job.yaml...
//	locetl submit job.yaml...
//	locetl worker [--migrate]
//	locetl migrate
//
// Settings come from the environment (see internal/config); a .env file in
// the working directory is loaded first when present.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
