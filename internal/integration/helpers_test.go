//go:build integration

package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"gonum.org/v1/gonum/mat"

	"github.com/intecmar/cop-loc-etl/internal/adapter/gridfile"
	"github.com/intecmar/cop-loc-etl/internal/adapter/sqlstore"
	"github.com/intecmar/cop-loc-etl/internal/domain"
	"github.com/intecmar/cop-loc-etl/internal/observability"
	"github.com/intecmar/cop-loc-etl/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	c, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("cop-loc-etl"))
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err, "start kafka")

	brokers, err := c.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// startPostGIS runs a PostGIS server and returns a migrated store on it.
func startPostGIS(ctx context.Context, t *testing.T) *sqlstore.Store {
	t.Helper()
	c, err := postgres.Run(ctx, "postgis/postgis:16-3.4",
		postgres.WithDatabase("cop"),
		postgres.WithUsername("cop"),
		postgres.WithPassword("cop"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err, "start postgis")

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := sqlstore.Open(ctx, sqlstore.Options{
		Driver:         sqlstore.DriverPostgres,
		DSN:            dsn,
		Schema:         "cop",
		MaxOpenConns:   4,
		CacheSize:      64,
		ConnectTimeout: 30 * time.Second,
	}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	return store
}

func newIngester(store *sqlstore.Store) *pipeline.Ingester {
	metrics := observability.NewMetricsForTesting()
	logger := discardLogger()
	grid := pipeline.NewGridZoneBuilder(gridfile.Open, 2, logger, metrics)
	return pipeline.NewIngester(
		map[domain.Source]pipeline.ZoneBuilder{
			domain.SourceNetCDF: grid,
			domain.SourceMOHID:  grid,
			domain.SourceAloha:  pipeline.NewAlohaZoneBuilder(logger, metrics),
		},
		func(ctx context.Context) (pipeline.Session, error) { return store.Session(ctx) },
		logger, metrics,
	)
}

// plumeJob writes a two-step NetCDF grid whose maximum is a 10 ppm block in
// the middle of a 4x4 field, and returns a PAC job over it.
func plumeJob(t *testing.T, simulation string) domain.Job {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plume.nc")
	step := func(v float64) *mat.Dense {
		return mat.NewDense(4, 4, []float64{
			0, 0, 0, 0,
			0, v, v, 0,
			0, v, v, 0,
			0, 0, 0, 0,
		})
	}
	require.NoError(t, gridfile.WriteNetCDF(path, gridfile.Dataset{
		Latitudes:  []float64{42.0, 42.1, 42.2, 42.3},
		Longitudes: []float64{-9.0, -8.9, -8.8, -8.7},
		Reference:  time.Date(2024, time.March, 14, 6, 0, 0, 0, time.UTC),
		Hours:      []float64{0, 1},
		Fields:     map[string][]*mat.Dense{"concentration": {step(4), step(10)}},
	}))
	return domain.Job{
		Source:     domain.SourceNetCDF,
		FileIn:     path,
		Campaign:   domain.Described{Name: "Integration", Description: "containers"},
		Model:      "plume",
		Simulation: domain.Described{Name: simulation, Description: "two steps"},
		Variable:   "concentration",
		Levels: domain.LevelSpec{
			Type: "PAC",
			Level: []domain.Threshold{
				{Name: "PAC-1", Description: "low", Value: 2},
				{Name: "PAC-2", Description: "mid", Value: 5},
				{Name: "PAC-3", Description: "above peak", Value: 50},
			},
		},
	}
}
