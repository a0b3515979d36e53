//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intecmar/cop-loc-etl/internal/adapter/kafka"
	"github.com/intecmar/cop-loc-etl/internal/config"
	"github.com/intecmar/cop-loc-etl/internal/domain"
	"github.com/intecmar/cop-loc-etl/internal/observability"
	"github.com/intecmar/cop-loc-etl/internal/pipeline"
)

const testJobTopic = "test-loc-jobs"

// TestWorkerConsumesSubmittedJobs submits jobs through kafka.Writer, runs the
// worker pipeline against a real broker and PostGIS, and checks that a poison
// message is skipped while valid jobs land in the store.
func TestWorkerConsumesSubmittedJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testJobTopic)
	store := startPostGIS(ctx, t)

	cfg := &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaJobTopic:      testJobTopic,
		KafkaGroupID:       fmt.Sprintf("test-worker-%d", time.Now().UnixNano()),
		BatchFlushInterval: 2 * time.Second,
	}

	// A poison pill ahead of the real jobs.
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testJobTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte("bad"),
		Value: []byte("source: [unterminated"),
	}))

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.Submit(ctx, []domain.Job{
		plumeJob(t, "worker-a"),
		plumeJob(t, "worker-b"),
	}))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, newIngester(store), discardLogger(), metrics, 10, 3)

	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(runCtx) }()

	require.Eventually(t, func() bool {
		n, err := store.Count(ctx, domain.EntitySimulation)
		return err == nil && n == 2
	}, 2*time.Minute, 500*time.Millisecond, "both simulations should be stored")

	stop()
	require.NoError(t, <-errCh)

	lines, err := store.Count(ctx, domain.EntityLine)
	require.NoError(t, err)
	assert.Equal(t, 4, lines)
}
