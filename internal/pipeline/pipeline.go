package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/intecmar/cop-loc-etl/internal/domain"
	"github.com/intecmar/cop-loc-etl/internal/observability"
)

// JobExtractor reads up to batchSize queued jobs.
type JobExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawJob, error)
}

// JobIngester ingests one decoded job.
type JobIngester interface {
	Ingest(ctx context.Context, job domain.Job) (domain.IngestReport, error)
}

// Pipeline is the worker loop: extract queued jobs, ingest each, commit.
type Pipeline struct {
	extractor   JobExtractor
	ingester    JobIngester
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
	maxAttempts int
	retryBase   time.Duration
	holdBase    time.Duration
	holdMax     time.Duration
}

// Option tunes a Pipeline.
type Option func(*Pipeline)

// WithRetryInterval sets the first delay between ingestion attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.retryBase = d }
}

// WithHoldBackoff sets the delay between failed batches and between rounds
// of a job held while the store is unavailable. The delay grows from initial
// up to maxDelay.
func WithHoldBackoff(initial, maxDelay time.Duration) Option {
	return func(p *Pipeline) { p.holdBase, p.holdMax = initial, maxDelay }
}

// New creates a Pipeline. A job whose ingestion fails with a persistence
// error is attempted up to maxAttempts times.
func New(e JobExtractor, ing JobIngester, logger *slog.Logger, metrics *observability.Metrics, batchSize, maxAttempts int, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:   e,
		ingester:    ing,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		maxAttempts: max(maxAttempts, 1),
		retryBase:   500 * time.Millisecond,
		holdBase:    200 * time.Millisecond,
		holdMax:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once the pipeline has completed a batch.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any jobs yet")
	}
	return nil
}

// Run executes the worker loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize, "max_attempts", p.maxAttempts)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	hold := p.holdBackOff()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, hold) {
			return nil
		}
	}
}

// processBatch runs one extract-ingest-commit cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, hold backoff.BackOff) bool {
	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, hold)
	}
	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.JobsConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))
	hold.Reset()

	for _, raw := range batch {
		// Hold position while the store is down; later offsets must not be
		// committed past an unprocessed job.
		for !p.processJob(ctx, raw) {
			if !p.backoffOrStop(ctx, hold) {
				return false
			}
		}
	}
	p.ready.Store(true)
	return true
}

// processJob ingests one queued job. Malformed jobs and jobs that fail for
// reasons a retry cannot fix, constraint violations included, are logged,
// counted and committed. Returns false when persistence kept failing, leaving
// the job uncommitted.
func (p *Pipeline) processJob(ctx context.Context, raw domain.RawJob) bool {
	job, err := domain.ParseRawJob(raw)
	if err != nil {
		p.logger.Warn("invalid job, skipping message",
			"error", err, "topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
		p.metrics.JobsFailed.WithLabelValues("invalid").Inc()
		p.commitOffset(ctx, raw)
		return true
	}

	_, err = p.ingestWithRetry(ctx, job)
	switch {
	case err == nil:
		p.commitOffset(ctx, raw)
		return true
	case ctx.Err() != nil:
		return false
	case isRetryable(err):
		p.logger.Error("ingest failed, store unavailable",
			"error", err, "file", job.FileIn, "attempts", p.maxAttempts, "offset", raw.Offset)
		p.metrics.JobsFailed.WithLabelValues("persistence").Inc()
		return false
	case isConstraint(err):
		p.logger.Error("ingest rejected by store constraint, skipping job",
			"error", err, "file", job.FileIn, "offset", raw.Offset)
		p.metrics.JobsFailed.WithLabelValues("constraint").Inc()
		p.commitOffset(ctx, raw)
		return true
	default:
		p.logger.Error("ingest failed, skipping job",
			"error", err, "file", job.FileIn, "offset", raw.Offset)
		p.metrics.JobsFailed.WithLabelValues("ingest").Inc()
		p.commitOffset(ctx, raw)
		return true
	}
}

func (p *Pipeline) ingestWithRetry(ctx context.Context, job domain.Job) (domain.IngestReport, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retryBase
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.maxAttempts-1)), ctx)

	op := func() (domain.IngestReport, error) {
		report, err := p.ingester.Ingest(ctx, job)
		if err != nil && !isRetryable(err) {
			return report, backoff.Permanent(err)
		}
		return report, err
	}
	notify := func(err error, wait time.Duration) {
		p.metrics.JobRetries.Inc()
		p.logger.Warn("ingest failed, retrying", "file", job.FileIn, "error", err, "wait", wait)
	}
	return backoff.RetryNotifyWithData(op, policy, notify)
}

// isRetryable reports whether err is a storage failure another attempt may
// get past.
func isRetryable(err error) bool {
	var perr *domain.PersistenceError
	return errors.As(err, &perr) && !perr.Constraint
}

func isConstraint(err error) bool {
	var perr *domain.PersistenceError
	return errors.As(err, &perr) && perr.Constraint
}

func (p *Pipeline) holdBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.holdBase
	b.MaxInterval = p.holdMax
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// backoffOrStop sleeps for the next hold delay. Returns false if the pipeline
// should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, hold backoff.BackOff) bool {
	if ctx.Err() != nil {
		return false
	}
	d := hold.NextBackOff()
	if d == backoff.Stop {
		d = p.holdMax
	}
	return sleepWithContext(ctx, d)
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawJob) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
