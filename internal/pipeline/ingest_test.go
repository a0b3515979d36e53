package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/intecmar/cop-loc-etl/internal/adapter/gridfile"
	"github.com/intecmar/cop-loc-etl/internal/adapter/sqlstore"
	"github.com/intecmar/cop-loc-etl/internal/domain"
	"github.com/intecmar/cop-loc-etl/internal/observability"
	"github.com/intecmar/cop-loc-etl/internal/pipeline"
)

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var runDate = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

// fakeGrid serves in-memory fields.
type fakeGrid struct {
	lats, lons []float64
	dates      []time.Time
	fields     map[string][]*mat.Dense
	closed     bool
}

func (g *fakeGrid) Latitudes() ([]float64, error)  { return g.lats, nil }
func (g *fakeGrid) Longitudes() ([]float64, error) { return g.lons, nil }
func (g *fakeGrid) Dates() ([]time.Time, error)    { return g.dates, nil }
func (g *fakeGrid) Close() error                   { g.closed = true; return nil }

func (g *fakeGrid) Variable(name string, t int) (*mat.Dense, error) {
	steps, ok := g.fields[name]
	if !ok || t < 1 || t > len(steps) {
		return nil, errors.New("no such field step")
	}
	return steps[t-1], nil
}

// centerGrid is a 4x4 grid on unit axes, 0 on the border and 10 in the
// center 2x2 block.
func centerGrid() *fakeGrid {
	return &fakeGrid{
		lats:  []float64{0, 1, 2, 3},
		lons:  []float64{0, 1, 2, 3},
		dates: []time.Time{runDate, runDate.Add(time.Hour)},
		fields: map[string][]*mat.Dense{
			domain.VariableAirConcentration: {
				mat.NewDense(4, 4, []float64{
					0, 0, 0, 0,
					0, 10, 4, 0,
					0, 4, 10, 0,
					0, 0, 0, 0,
				}),
				mat.NewDense(4, 4, []float64{
					0, 0, 0, 0,
					0, 3, 10, 0,
					0, 10, 2, 0,
					0, 0, 0, 0,
				}),
			},
		},
	}
}

func gridJob(levels ...domain.Threshold) domain.Job {
	return domain.Job{
		Source:     domain.SourceNetCDF,
		FileIn:     "center.nc",
		Campaign:   domain.Described{Name: "EXERCISE-2024", Description: "Ria de Arousa drill"},
		Model:      "MOHID",
		Simulation: domain.Described{Name: "run-01", Description: "ammonia release"},
		Levels:     domain.LevelSpec{Type: "PAC", Level: levels},
	}
}

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()
	s, err := sqlstore.Open(ctx, sqlstore.Options{
		Driver:       sqlstore.DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "cop.db"),
		MaxOpenConns: 4,
	}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func sessions(s *sqlstore.Store) pipeline.SessionOpener {
	return func(ctx context.Context) (pipeline.Session, error) {
		return s.Session(ctx)
	}
}

func newIngester(t *testing.T, src domain.GridSource, s *sqlstore.Store) *pipeline.Ingester {
	t.Helper()
	logger, metrics := discardLogger(), observability.NewMetricsForTesting()
	open := func(string, domain.Source) (domain.GridSource, error) { return src, nil }
	builders := map[domain.Source]pipeline.ZoneBuilder{
		domain.SourceNetCDF: pipeline.NewGridZoneBuilder(open, 2, logger, metrics),
		domain.SourceAloha:  pipeline.NewAlohaZoneBuilder(logger, metrics),
	}
	var opener pipeline.SessionOpener
	if s != nil {
		opener = sessions(s)
	}
	return pipeline.NewIngester(builders, opener, logger, metrics)
}

func count(t *testing.T, s *sqlstore.Store, kind domain.EntityKind) int {
	t.Helper()
	n, err := s.Count(context.Background(), kind)
	require.NoError(t, err)
	return n
}

func locID(t *testing.T, s *sqlstore.Store, job domain.Job, date time.Time) int64 {
	t.Helper()
	ctx := context.Background()
	sess, err := s.Session(ctx)
	require.NoError(t, err)
	defer sess.Close()

	model, err := sess.ResolveModel(ctx, job.Model)
	require.NoError(t, err)
	campaign, err := sess.ResolveCampaign(ctx, job.Campaign.Name, "")
	require.NoError(t, err)
	sim, err := sess.ResolveSimulation(ctx, domain.SimulationKey{CampaignID: campaign, ModelID: model, Name: job.Simulation.Name}, "")
	require.NoError(t, err)
	out, err := sess.ResolveOutput(ctx, domain.NewOutputKey(sim, date, domain.OutputTypeLOCAreas))
	require.NoError(t, err)
	loc, err := sess.ResolveLoc(ctx, out, domain.LocTypePAC)
	require.NoError(t, err)
	return loc
}

// --- tests ---

func TestIngest_CenterBlockEndToEnd(t *testing.T) {
	clock := clockwork.NewFakeClockAt(runDate.Add(24 * time.Hour))
	domain.SetClock(clock)
	t.Cleanup(func() { domain.SetClock(clockwork.NewRealClock()) })

	store := newStore(t)
	src := centerGrid()
	ing := newIngester(t, src, store)
	job := gridJob(domain.Threshold{Name: "PAC-1", Description: "PAC-1 5 ppm", Value: 5})

	report, err := ing.Ingest(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, src.closed)
	assert.Equal(t, []string{"PAC-1"}, report.Stored)
	assert.Empty(t, report.Existing)
	assert.Empty(t, report.Omitted)
	assert.Equal(t, domain.LocTypePAC, report.LocType)
	assert.Equal(t, runDate, report.InitialDate)
	assert.Equal(t, clock.Now().UTC(), report.FinishedAt)

	assert.Equal(t, 1, count(t, store, domain.EntityLoc))
	assert.Equal(t, 1, count(t, store, domain.EntityLine))

	lines, err := store.Lines(context.Background(), locID(t, store, job, runDate))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "PAC-1", lines[0].Level)
	assert.Equal(t, "PAC-1 5 ppm", lines[0].Description)
	assert.Equal(t,
		"POLYGON ((0.5 1, 1 0.5, 2 0.5, 2.5 1, 2.5 2, 2 2.5, 1 2.5, 0.5 2, 0.5 1))",
		lines[0].Envelope)

	// Re-ingesting the same output is a no-op.
	again, err := ing.Ingest(context.Background(), job)
	require.NoError(t, err)
	assert.Empty(t, again.Stored)
	assert.Equal(t, []string{"PAC-1"}, again.Existing)
	assert.Equal(t, 1, count(t, store, domain.EntityLine))
	assert.Equal(t, 1, count(t, store, domain.EntityOutput))
}

func TestIngest_OmitsLevelsWithoutCrossing(t *testing.T) {
	store := newStore(t)
	ing := newIngester(t, centerGrid(), store)
	job := gridJob(
		domain.Threshold{Name: "PAC-1", Value: 5},
		domain.Threshold{Name: "PAC-2", Value: 50},
		domain.Threshold{Name: "PAC-3", Value: 9},
	)

	report, err := ing.Ingest(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{"PAC-1", "PAC-3"}, report.Stored)
	require.Len(t, report.Omitted, 1)
	assert.Equal(t, domain.OmittedLevel{Name: "PAC-2", Reason: pipeline.OmitNoCrossing}, report.Omitted[0])
	assert.Equal(t, 2, count(t, store, domain.EntityLine))
}

func TestIngest_UnknownLevelWritesNothing(t *testing.T) {
	store := newStore(t)
	ing := newIngester(t, centerGrid(), store)
	job := gridJob(domain.Threshold{Name: "PAC-9", Value: 5})

	_, err := ing.Ingest(context.Background(), job)
	var vocab *domain.UnknownVocabularyError
	require.True(t, errors.As(err, &vocab), "got %v", err)
	assert.Equal(t, "PAC-9", vocab.Name)
	assert.Contains(t, err.Error(), "center.nc")
	assert.Equal(t, 0, count(t, store, domain.EntityModel))
}

func TestIngest_ExplicitInitialDateWins(t *testing.T) {
	store := newStore(t)
	ing := newIngester(t, centerGrid(), store)
	job := gridJob(domain.Threshold{Name: "PAC-1", Value: 5})
	job.InitialDate = "2024-02-29 23:00:00"

	report, err := ing.Ingest(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC), report.InitialDate)
}

func TestIngest_NoStoreConfigured(t *testing.T) {
	ing := newIngester(t, centerGrid(), nil)
	_, err := ing.Ingest(context.Background(), gridJob(domain.Threshold{Name: "PAC-1", Value: 5}))
	assert.ErrorContains(t, err, "no store configured")
}

func TestPreview_WritesGeoJSON(t *testing.T) {
	ing := newIngester(t, centerGrid(), nil)
	var buf bytes.Buffer

	report, err := ing.Preview(context.Background(), gridJob(domain.Threshold{Name: "PAC-2", Description: "PAC-2", Value: 5}), &buf)
	require.NoError(t, err)
	assert.True(t, report.DryRun)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
			Geometry   struct {
				Type        string         `json:"type"`
				Coordinates [][][2]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	f := fc.Features[0]
	assert.Equal(t, "PAC-2", f.Properties["loc_level"])
	assert.Equal(t, "TOXIC", f.Properties["category"])
	assert.Equal(t, "Polygon", f.Geometry.Type)
	require.Len(t, f.Geometry.Coordinates, 1)
	ring := f.Geometry.Coordinates[0]
	assert.Equal(t, ring[0], ring[len(ring)-1])
}

func TestIngest_NetCDFFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plume.nc")
	src := centerGrid()
	require.NoError(t, gridfile.WriteNetCDF(path, gridfile.Dataset{
		Latitudes:  []float64{42.50, 42.51, 42.52, 42.53},
		Longitudes: []float64{-8.90, -8.89, -8.88, -8.87},
		Reference:  runDate,
		Hours:      []float64{0, 1},
		Fields:     src.fields,
	}))

	store := newStore(t)
	logger, metrics := discardLogger(), observability.NewMetricsForTesting()
	ing := pipeline.NewIngester(map[domain.Source]pipeline.ZoneBuilder{
		domain.SourceNetCDF: pipeline.NewGridZoneBuilder(gridfile.Open, 1, logger, metrics),
	}, sessions(store), logger, metrics)

	job := gridJob(domain.Threshold{Name: "PAC-1", Value: 5})
	job.FileIn = path
	report, err := ing.Ingest(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{"PAC-1"}, report.Stored)
	assert.Equal(t, runDate, report.InitialDate)
}

const alohaKML = `<kml xmlns="http://www.opengis.net/kml/2.2"><Document>
<Folder><name>Aloha Threat Zones</name>
<Placemark><name>AEGL-3 Threat Zone</name><Polygon><outerBoundaryIs><LinearRing>
<coordinates>-8.77,42.60 -8.76,42.60 -8.76,42.61 -8.77,42.60</coordinates></LinearRing></outerBoundaryIs></Polygon></Placemark>
<Placemark><name>AEGL-1 Threat Zone</name><Polygon><outerBoundaryIs><LinearRing>
<coordinates>-8.80,42.58 -8.70,42.58 -8.70,42.65 -8.80,42.65</coordinates></LinearRing></outerBoundaryIs></Polygon></Placemark>
<Placemark><name>AEGL-2 Threat Zone</name><Polygon><outerBoundaryIs><LinearRing>
<coordinates>-8.77,42.60 -8.77,42.60</coordinates></LinearRing></outerBoundaryIs></Polygon></Placemark>
<Placemark><name>Source Note</name></Placemark>
</Folder></Document></kml>`

func TestIngest_Aloha(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.kml")
	require.NoError(t, os.WriteFile(path, []byte(alohaKML), 0o600))

	store := newStore(t)
	ing := newIngester(t, nil, store)
	job := domain.Job{
		Source:      domain.SourceAloha,
		FileIn:      path,
		Campaign:    domain.Described{Name: "EXERCISE-2024"},
		Model:       "ALOHA",
		Simulation:  domain.Described{Name: "chlorine"},
		InitialDate: "2024-03-01 06:00:00",
	}

	report, err := ing.Ingest(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.LocTypeAEGL, report.LocType)
	assert.Equal(t, []string{"AEGL-3", "AEGL-1"}, report.Stored)
	require.Len(t, report.Omitted, 2)
	assert.Equal(t, "AEGL-2 Threat Zone", report.Omitted[0].Name)
	assert.Equal(t, pipeline.OmitNoValidRing, report.Omitted[0].Reason)
	assert.Equal(t, pipeline.OmitNoLevel, report.Omitted[1].Reason)
	assert.Equal(t, 2, count(t, store, domain.EntityLine))
}

func TestIngest_RejectsLevelOfAnotherType(t *testing.T) {
	store := newStore(t)
	ing := newIngester(t, centerGrid(), store)
	job := gridJob(domain.Threshold{Name: "PAC-1", Value: 5}, domain.Threshold{Name: "AEGL-1", Value: 2})

	_, err := ing.Ingest(context.Background(), job)
	var vocab *domain.UnknownVocabularyError
	require.True(t, errors.As(err, &vocab), "got %v", err)
	assert.Equal(t, "AEGL-1", vocab.Name)
	assert.Equal(t, "PAC", vocab.LocType)
	assert.Equal(t, 0, count(t, store, domain.EntityModel))
	assert.Equal(t, 0, count(t, store, domain.EntityLine))
}

func alohaJob(path string) domain.Job {
	return domain.Job{
		Source:      domain.SourceAloha,
		FileIn:      path,
		Campaign:    domain.Described{Name: "EXERCISE-2024"},
		Model:       "ALOHA",
		Simulation:  domain.Described{Name: "chlorine"},
		InitialDate: "2024-03-01 06:00:00",
	}
}

func TestIngest_AlohaOmitsPlacemarksOfAnotherType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.kml")
	require.NoError(t, os.WriteFile(path, []byte(alohaKML), 0o600))

	store := newStore(t)
	ing := newIngester(t, nil, store)
	job := alohaJob(path)
	job.Levels.Type = "PAC"

	report, err := ing.Ingest(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, domain.LocTypePAC, report.LocType)
	assert.Empty(t, report.Stored)
	require.Len(t, report.Omitted, 4)
	for _, o := range report.Omitted[:3] {
		assert.Equal(t, pipeline.OmitOtherType, o.Reason, o.Name)
	}
	assert.Equal(t, pipeline.OmitNoLevel, report.Omitted[3].Reason)
	assert.Equal(t, 0, count(t, store, domain.EntityLine))
}

func TestIngest_AlohaMixedExportKeepsInferredType(t *testing.T) {
	const mixed = `<kml><Document><Folder><name>Aloha Threat Zones</name>
<Placemark><name>PAC-2 Threat Zone</name><Polygon><outerBoundaryIs><LinearRing>
<coordinates>-8.80,42.58 -8.70,42.58 -8.70,42.65 -8.80,42.65</coordinates></LinearRing></outerBoundaryIs></Polygon></Placemark>
<Placemark><name>AEGL-1 Threat Zone</name><Polygon><outerBoundaryIs><LinearRing>
<coordinates>-8.80,42.58 -8.70,42.58 -8.70,42.65 -8.80,42.65</coordinates></LinearRing></outerBoundaryIs></Polygon></Placemark>
</Folder></Document></kml>`
	path := filepath.Join(t.TempDir(), "mixed.kml")
	require.NoError(t, os.WriteFile(path, []byte(mixed), 0o600))

	store := newStore(t)
	report, err := newIngester(t, nil, store).Ingest(context.Background(), alohaJob(path))
	require.NoError(t, err)
	assert.Equal(t, domain.LocTypePAC, report.LocType)
	assert.Equal(t, []string{"PAC-2"}, report.Stored)
	assert.Equal(t, []domain.OmittedLevel{{Name: "AEGL-1 Threat Zone", Reason: pipeline.OmitOtherType}}, report.Omitted)
}

func TestIngest_AlohaRejectsCoordinatesOutOfBounds(t *testing.T) {
	const bad = `<kml><Document><Folder><name>Aloha Threat Zones</name>
<Placemark><name>AEGL-1 Threat Zone</name><Polygon><outerBoundaryIs><LinearRing>
<coordinates>-8.80,42.58 -8.70,95.00 -8.70,42.65 -8.80,42.65</coordinates></LinearRing></outerBoundaryIs></Polygon></Placemark>
</Folder></Document></kml>`
	path := filepath.Join(t.TempDir(), "bad.kml")
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o600))

	store := newStore(t)
	_, err := newIngester(t, nil, store).Ingest(context.Background(), alohaJob(path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside longitude/latitude bounds")
	assert.Equal(t, 0, count(t, store, domain.EntityLine))
}
