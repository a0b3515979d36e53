package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/intecmar/cop-loc-etl/internal/config"
	"github.com/intecmar/cop-loc-etl/internal/domain"
)

// Writer publishes job documents to the job topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured job topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaJobTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Submit publishes jobs in a single WriteMessages call. Jobs for the same
// simulation share a key and so land on the same partition in order.
func (w *Writer) Submit(ctx context.Context, jobs []domain.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(jobs))
	for i := range jobs {
		msg, err := serializeToMessage(jobs[i], time.Now().UTC())
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish jobs: %w", err)
	}
	w.logger.Info("jobs submitted", "count", len(jobs), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// jobKey groups jobs of one simulation.
func jobKey(job domain.Job) string {
	return job.Campaign.Name + "/" + job.Model + "/" + job.Simulation.Name
}

// serializeToMessage marshals a Job into a Kafka message.
func serializeToMessage(job domain.Job, submitted time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize job: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(jobKey(job)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "source", Value: []byte(job.Source)},
			{Key: "submitted_at", Value: []byte(submitted.Format(time.RFC3339))},
		},
	}, nil
}
