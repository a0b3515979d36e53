package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ctessum/geom"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/intecmar/cop-loc-etl/internal/adapter/kml"
	"github.com/intecmar/cop-loc-etl/internal/contour"
	"github.com/intecmar/cop-loc-etl/internal/domain"
	"github.com/intecmar/cop-loc-etl/internal/geometry"
	"github.com/intecmar/cop-loc-etl/internal/grid"
	"github.com/intecmar/cop-loc-etl/internal/observability"
)

// ZoneBuilder turns a job's source file into per-level zones.
type ZoneBuilder interface {
	Build(ctx context.Context, job domain.Job) (domain.ZoneSet, error)
}

// GridOpener opens a gridded source file.
type GridOpener func(path string, source domain.Source) (domain.GridSource, error)

// Reasons a requested level yields no zone.
const (
	OmitNoCrossing  = "no crossing"
	OmitNoValidRing = "no valid ring"
	OmitNoLevel     = "unmatched placemark"
	OmitOtherType   = "level of another loc type"
)

// GridZoneBuilder contours a gridded field at every requested threshold.
type GridZoneBuilder struct {
	open    GridOpener
	workers int
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewGridZoneBuilder creates a GridZoneBuilder contouring up to workers
// levels at once.
func NewGridZoneBuilder(open GridOpener, workers int, logger *slog.Logger, metrics *observability.Metrics) *GridZoneBuilder {
	if workers < 1 {
		workers = 1
	}
	return &GridZoneBuilder{open: open, workers: workers, logger: logger, metrics: metrics}
}

type levelResult struct {
	zone    *domain.Zone
	omitted *domain.OmittedLevel
}

// Build reads the field variable over every time step, reduces it to its
// per-cell maximum and contours the result at each threshold. Levels with no
// crossing or no valid ring are reported as omitted, not as errors.
func (b *GridZoneBuilder) Build(ctx context.Context, job domain.Job) (domain.ZoneSet, error) {
	locType, err := job.LocType()
	if err != nil {
		return domain.ZoneSet{}, err
	}
	reproject, err := geometry.NewReprojector(job.SRS)
	if err != nil {
		return domain.ZoneSet{}, err
	}

	src, err := b.open(job.FileIn, job.Source)
	if err != nil {
		return domain.ZoneSet{}, err
	}
	defer src.Close()

	lats, err := src.Latitudes()
	if err != nil {
		return domain.ZoneSet{}, fmt.Errorf("read latitudes: %w", err)
	}
	lons, err := src.Longitudes()
	if err != nil {
		return domain.ZoneSet{}, fmt.Errorf("read longitudes: %w", err)
	}
	dates, err := src.Dates()
	if err != nil {
		return domain.ZoneSet{}, fmt.Errorf("read dates: %w", err)
	}
	if len(dates) == 0 {
		return domain.ZoneSet{}, errors.New("grid has no time steps")
	}
	initialDate, err := gridInitialDate(job, dates)
	if err != nil {
		return domain.ZoneSet{}, err
	}

	variable := job.FieldVariable(locType)
	field, err := grid.MaxOverTime(src, variable, len(dates))
	if err != nil {
		return domain.ZoneSet{}, err
	}
	rows, cols := field.Dims()
	if len(lats) < rows || len(lons) < cols {
		return domain.ZoneSet{}, fmt.Errorf("axes of %d latitudes and %d longitudes do not cover a %dx%d field", len(lats), len(lons), rows, cols)
	}
	latAxis, err := grid.NewAxisMapper(lats)
	if err != nil {
		return domain.ZoneSet{}, fmt.Errorf("latitude axis: %w", err)
	}
	lonAxis, err := grid.NewAxisMapper(lons)
	if err != nil {
		return domain.ZoneSet{}, fmt.Errorf("longitude axis: %w", err)
	}
	b.logger.Debug("field reduced",
		"file", job.FileIn, "variable", variable, "steps", len(dates), "rows", rows, "cols", cols)

	results := make([]levelResult, len(job.Levels.Level))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, th := range job.Levels.Level {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := b.contourLevel(field, th, latAxis, lonAxis, reproject)
			if err != nil {
				return fmt.Errorf("level %q: %w", th.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.ZoneSet{}, err
	}

	set := domain.ZoneSet{LocType: locType, InitialDate: initialDate}
	for _, res := range results {
		if res.zone != nil {
			set.Zones = append(set.Zones, *res.zone)
		}
		if res.omitted != nil {
			set.Omitted = append(set.Omitted, *res.omitted)
		}
	}
	return set, nil
}

func (b *GridZoneBuilder) contourLevel(field *mat.Dense, th domain.Threshold, latAxis, lonAxis *grid.AxisMapper, reproject *geometry.Reprojector) (levelResult, error) {
	level, err := domain.ParseLocLevel(th.Name)
	if err != nil {
		return levelResult{}, err
	}

	rings := contour.Extract(field, th.Value)
	if len(rings) == 0 {
		b.logger.Warn("level omitted", "loc_level", th.Name, "value", th.Value, "error", domain.ErrNoCrossing)
		return levelResult{omitted: &domain.OmittedLevel{Name: th.Name, Reason: OmitNoCrossing}}, nil
	}

	builder := geometry.NewBuilder(th.Name)
	for _, ring := range rings {
		pts := make([]geom.Point, len(ring.Points))
		for i, px := range ring.Points {
			pts[i] = geom.Point{X: lonAxis.At(px.Col), Y: latAxis.At(px.Row)}
		}
		if err := builder.AddRing(pts); err != nil {
			b.dropRing(err)
		}
	}

	poly, ok := builder.Polygon()
	if !ok {
		b.logger.Warn("level omitted", "loc_level", th.Name, "value", th.Value, "reason", OmitNoValidRing)
		return levelResult{omitted: &domain.OmittedLevel{Name: th.Name, Reason: OmitNoValidRing}}, nil
	}
	poly, err = reproject.Polygon(poly)
	if err != nil {
		return levelResult{}, err
	}
	return levelResult{zone: &domain.Zone{Level: level, Description: th.Description, Polygon: poly}}, nil
}

func (b *GridZoneBuilder) dropRing(err error) {
	reason := "invalid"
	var ringErr *domain.InvalidRingError
	if errors.As(err, &ringErr) {
		reason = ringErr.Reason
	}
	b.logger.Warn("ring dropped", "error", err)
	b.metrics.RingsDropped.WithLabelValues(reason).Inc()
}

// gridInitialDate is the job's explicit initial date when given, otherwise
// the grid's first time step.
func gridInitialDate(job domain.Job, dates []time.Time) (time.Time, error) {
	if job.InitialDate != "" {
		return job.ParseInitialDate()
	}
	return dates[0], nil
}

// AlohaZoneBuilder reads ALOHA threat-zone KML exports.
type AlohaZoneBuilder struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAlohaZoneBuilder creates an AlohaZoneBuilder.
func NewAlohaZoneBuilder(logger *slog.Logger, metrics *observability.Metrics) *AlohaZoneBuilder {
	return &AlohaZoneBuilder{logger: logger, metrics: metrics}
}

// Build turns every named threat-zone placemark into a zone. The LOC type is
// the job's when given, otherwise inferred from the first placemark, and
// placemarks whose level belongs to another type are omitted. The placemark
// name becomes the zone description.
func (b *AlohaZoneBuilder) Build(_ context.Context, job domain.Job) (domain.ZoneSet, error) {
	doc, err := kml.ParseFile(job.FileIn)
	if err != nil {
		return domain.ZoneSet{}, err
	}
	initialDate, err := job.ParseInitialDate()
	if err != nil {
		return domain.ZoneSet{}, err
	}
	reproject, err := geometry.NewReprojector(job.SRS)
	if err != nil {
		return domain.ZoneSet{}, err
	}

	inferred, inferErr := doc.LocType()
	var locType domain.LocType
	switch {
	case job.Levels.Type != "":
		if locType, err = job.LocType(); err != nil {
			return domain.ZoneSet{}, err
		}
		if inferErr == nil && locType != inferred {
			b.logger.Warn("loc type differs from placemark names",
				"file", job.FileIn, "job", locType, "placemarks", inferred)
		}
	case inferErr != nil:
		return domain.ZoneSet{}, inferErr
	default:
		locType = inferred
	}

	set := domain.ZoneSet{LocType: locType, InitialDate: initialDate}
	for _, tz := range doc.Zones {
		if !tz.Matched {
			b.logger.Warn("placemark skipped", "placemark", tz.Name, "reason", OmitNoLevel)
			set.Omitted = append(set.Omitted, domain.OmittedLevel{Name: tz.Name, Reason: OmitNoLevel})
			continue
		}
		if tz.Level.LocType() != locType {
			b.logger.Warn("placemark skipped", "placemark", tz.Name, "loc_type", locType, "reason", OmitOtherType)
			set.Omitted = append(set.Omitted, domain.OmittedLevel{Name: tz.Name, Reason: OmitOtherType})
			continue
		}
		builder := geometry.NewBuilder(tz.Level.String())
		for _, ring := range tz.Rings {
			if err := builder.AddRing(ring); err != nil {
				b.logger.Warn("ring dropped", "placemark", tz.Name, "error", err)
				b.metrics.RingsDropped.WithLabelValues("invalid").Inc()
			}
		}
		poly, ok := builder.Polygon()
		if !ok {
			b.logger.Warn("placemark skipped", "placemark", tz.Name, "reason", OmitNoValidRing)
			set.Omitted = append(set.Omitted, domain.OmittedLevel{Name: tz.Name, Reason: OmitNoValidRing})
			continue
		}
		if poly, err = reproject.Polygon(poly); err != nil {
			return domain.ZoneSet{}, fmt.Errorf("placemark %q: %w", tz.Name, err)
		}
		set.Zones = append(set.Zones, domain.Zone{Level: tz.Level, Description: tz.Name, Polygon: poly})
	}
	return set, nil
}
