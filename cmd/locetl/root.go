package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/intecmar/cop-loc-etl/internal/adapter/gridfile"
	"github.com/intecmar/cop-loc-etl/internal/adapter/sqlstore"
	"github.com/intecmar/cop-loc-etl/internal/config"
	"github.com/intecmar/cop-loc-etl/internal/domain"
	"github.com/intecmar/cop-loc-etl/internal/observability"
	"github.com/intecmar/cop-loc-etl/internal/pipeline"
)

// app carries what every sub-command shares once configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

func rootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "locetl",
		Short:         "Ingest hazard-model outputs as level-of-concern zones",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				slog.Error("failed to load config", "error", err)
				return err
			}
			a.cfg = cfg
			a.logger = observability.NewLogger(cfg)
			a.metrics = observability.NewMetrics()
			return nil
		},
	}
	root.AddCommand(
		ingestCommand(a),
		submitCommand(a),
		workerCommand(a),
		migrateCommand(a),
	)
	return root
}

func (a *app) openStore(ctx context.Context, migrate bool) (*sqlstore.Store, error) {
	store, err := sqlstore.Open(ctx, sqlstore.Options{
		Driver:         a.cfg.DatabaseDriver,
		DSN:            a.cfg.DatabaseURL,
		Schema:         a.cfg.DatabaseSchema,
		MaxOpenConns:   a.cfg.DatabaseMaxOpenConns,
		CacheSize:      a.cfg.IDCacheSize,
		ConnectTimeout: a.cfg.DatabaseConnectTimeout,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return store, nil
}

// newIngester wires the zone builders of every source. store may be nil for
// dry runs.
func (a *app) newIngester(store *sqlstore.Store) *pipeline.Ingester {
	grid := pipeline.NewGridZoneBuilder(gridfile.Open, a.cfg.ContourWorkers, a.logger, a.metrics)
	builders := map[domain.Source]pipeline.ZoneBuilder{
		domain.SourceMOHID:  grid,
		domain.SourceNetCDF: grid,
		domain.SourceAloha:  pipeline.NewAlohaZoneBuilder(a.logger, a.metrics),
	}
	var sessions pipeline.SessionOpener
	if store != nil {
		sessions = func(ctx context.Context) (pipeline.Session, error) {
			return store.Session(ctx)
		}
	}
	return pipeline.NewIngester(builders, sessions, a.logger, a.metrics)
}
