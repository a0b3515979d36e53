package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	httpadapter "github.com/intecmar/cop-loc-etl/internal/adapter/http"
	kafkaadapter "github.com/intecmar/cop-loc-etl/internal/adapter/kafka"
	"github.com/intecmar/cop-loc-etl/internal/pipeline"
)

func workerCommand(a *app) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume job documents from Kafka and ingest them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger := a.cfg, a.logger

			store, err := a.openStore(ctx, migrate)
			if err != nil {
				logger.Error("failed to open store", "error", err)
				return err
			}
			defer store.Close()

			reader := kafkaadapter.NewReader(cfg, logger)
			p := pipeline.New(reader, a.newIngester(store), logger, a.metrics, cfg.BatchSize, cfg.JobMaxAttempts)

			srv := httpadapter.NewServer(cfg.HTTPAddr, logger,
				httpadapter.Check{Name: "database", Checker: store},
				httpadapter.Check{Name: "pipeline", Checker: p},
			)

			// Start HTTP server.
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", "error", err)
				}
			}()

			// Run the worker loop until a signal cancels ctx.
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
			if err := reader.Close(); err != nil {
				logger.Error("kafka reader close error", "error", err)
			}

			logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "create the schema and seed the vocabulary first")
	return cmd
}
