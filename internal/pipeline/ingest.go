package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/intecmar/cop-loc-etl/internal/domain"
	"github.com/intecmar/cop-loc-etl/internal/geometry"
	"github.com/intecmar/cop-loc-etl/internal/observability"
)

// Session is one ingestion's handle on the LOC hierarchy store.
type Session interface {
	ResolveModel(ctx context.Context, name string) (int64, error)
	ResolveCampaign(ctx context.Context, name, description string) (int64, error)
	ResolveSimulation(ctx context.Context, key domain.SimulationKey, description string) (int64, error)
	ResolveOutput(ctx context.Context, key domain.OutputKey) (int64, error)
	ResolveLoc(ctx context.Context, outputID int64, t domain.LocType) (int64, error)
	StoreLines(ctx context.Context, locID int64, recs []domain.LineRecord) ([]domain.LineOutcome, error)
	Close() error
}

// SessionOpener acquires a Session for one ingestion.
type SessionOpener func(ctx context.Context) (Session, error)

// Ingester runs whole-file ingestions: build zones, resolve the hierarchy,
// store one line per zone.
type Ingester struct {
	builders map[domain.Source]ZoneBuilder
	sessions SessionOpener
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewIngester creates an Ingester. sessions may be nil for an Ingester that
// only previews.
func NewIngester(builders map[domain.Source]ZoneBuilder, sessions SessionOpener, logger *slog.Logger, metrics *observability.Metrics) *Ingester {
	return &Ingester{builders: builders, sessions: sessions, logger: logger, metrics: metrics}
}

// Ingest processes one job. Vocabulary is checked before anything is
// written; a failure after the hierarchy is resolved leaves the parents in
// place and writes no lines for the file, so the job can be re-run.
func (in *Ingester) Ingest(ctx context.Context, job domain.Job) (domain.IngestReport, error) {
	report, set, err := in.build(ctx, job)
	if err != nil {
		return in.fail(report, err)
	}
	if in.sessions == nil {
		return in.fail(report, fmt.Errorf("ingest %s: no store configured", job.FileIn))
	}

	sess, err := in.sessions(ctx)
	if err != nil {
		return in.fail(report, fmt.Errorf("ingest %s: %w", job.FileIn, err))
	}
	defer sess.Close()

	locID, err := resolveLoc(ctx, sess, job, set)
	if err != nil {
		return in.fail(report, fmt.Errorf("ingest %s: %w", job.FileIn, err))
	}

	recs := make([]domain.LineRecord, len(set.Zones))
	for i, z := range set.Zones {
		recs[i] = domain.LineRecord{Level: z.Level, Envelope: geometry.WKT(z.Polygon), Description: z.Description}
	}
	outcomes, err := sess.StoreLines(ctx, locID, recs)
	if err != nil {
		return in.fail(report, fmt.Errorf("ingest %s: %w", job.FileIn, err))
	}
	for i, o := range outcomes {
		name := recs[i].Level.String()
		if o == domain.LineStored {
			report.Stored = append(report.Stored, name)
		} else {
			report.Existing = append(report.Existing, name)
		}
	}

	report.FinishedAt = domain.Now()
	in.observe(report, "success")
	in.logger.Info("file ingested",
		"file", report.File,
		"source", report.Source,
		"loc_type", report.LocType,
		"initial_date", report.InitialDate,
		"stored", len(report.Stored),
		"existing", len(report.Existing),
		"omitted", len(report.Omitted),
		"duration", report.Duration(),
	)
	return report, nil
}

// Preview builds the zones of job without touching the store and writes them
// to w as a GeoJSON feature collection.
func (in *Ingester) Preview(ctx context.Context, job domain.Job, w io.Writer) (domain.IngestReport, error) {
	report, set, err := in.build(ctx, job)
	if err != nil {
		return in.fail(report, err)
	}
	report.DryRun = true

	fc := geometry.NewFeatureCollection()
	for _, z := range set.Zones {
		props := map[string]any{
			"loc_type":     set.LocType.String(),
			"category":     set.LocType.Category().String(),
			"loc_level":    z.Level.String(),
			"description":  z.Description,
			"initial_date": set.InitialDate.Format(domain.InitialDateLayout),
		}
		if err := fc.Add(z.Polygon, props); err != nil {
			return in.fail(report, fmt.Errorf("preview %s: %w", job.FileIn, err))
		}
	}
	data, err := fc.MarshalIndent()
	if err != nil {
		return in.fail(report, fmt.Errorf("preview %s: %w", job.FileIn, err))
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return in.fail(report, fmt.Errorf("preview %s: %w", job.FileIn, err))
	}

	report.FinishedAt = domain.Now()
	in.observe(report, "dry_run")
	return report, nil
}

func (in *Ingester) build(ctx context.Context, job domain.Job) (domain.IngestReport, domain.ZoneSet, error) {
	report := domain.IngestReport{File: job.FileIn, Source: job.Source, StartedAt: domain.Now()}
	if err := job.Validate(); err != nil {
		return report, domain.ZoneSet{}, fmt.Errorf("ingest %s: %w", job.FileIn, err)
	}
	builder, ok := in.builders[job.Source]
	if !ok {
		return report, domain.ZoneSet{}, fmt.Errorf("ingest %s: no builder for source %q", job.FileIn, job.Source)
	}
	set, err := builder.Build(ctx, job)
	if err != nil {
		return report, domain.ZoneSet{}, fmt.Errorf("ingest %s: %w", job.FileIn, err)
	}
	for _, z := range set.Zones {
		if z.Level.LocType() != set.LocType {
			err := &domain.UnknownVocabularyError{Kind: string(domain.EntityLocLevel), Name: z.Level.String(), LocType: set.LocType.String()}
			return report, domain.ZoneSet{}, fmt.Errorf("ingest %s: %w", job.FileIn, err)
		}
	}
	report.LocType = set.LocType
	report.InitialDate = domain.NormalizeDate(set.InitialDate)
	report.Omitted = set.Omitted
	return report, set, nil
}

func (in *Ingester) fail(report domain.IngestReport, err error) (domain.IngestReport, error) {
	report.FinishedAt = domain.Now()
	in.observe(report, "error")
	return report, err
}

func (in *Ingester) observe(report domain.IngestReport, outcome string) {
	source := string(report.Source)
	in.metrics.FilesIngested.WithLabelValues(source, outcome).Inc()
	in.metrics.IngestDuration.WithLabelValues(source).Observe(report.Duration().Seconds())
	if outcome == "error" {
		return
	}
	in.metrics.Levels.WithLabelValues("stored").Add(float64(len(report.Stored)))
	in.metrics.Levels.WithLabelValues("existing").Add(float64(len(report.Existing)))
	in.metrics.Levels.WithLabelValues("omitted").Add(float64(len(report.Omitted)))
}

// resolveLoc walks the hierarchy from model down to the Loc of the zone set.
func resolveLoc(ctx context.Context, sess Session, job domain.Job, set domain.ZoneSet) (int64, error) {
	modelID, err := sess.ResolveModel(ctx, job.Model)
	if err != nil {
		return 0, err
	}
	campaignID, err := sess.ResolveCampaign(ctx, job.Campaign.Name, job.Campaign.Description)
	if err != nil {
		return 0, err
	}
	simID, err := sess.ResolveSimulation(ctx, domain.SimulationKey{
		CampaignID: campaignID,
		ModelID:    modelID,
		Name:       job.Simulation.Name,
	}, job.Simulation.Description)
	if err != nil {
		return 0, err
	}
	outputID, err := sess.ResolveOutput(ctx, domain.NewOutputKey(simID, set.InitialDate, domain.OutputTypeLOCAreas))
	if err != nil {
		return 0, err
	}
	return sess.ResolveLoc(ctx, outputID, set.LocType)
}
