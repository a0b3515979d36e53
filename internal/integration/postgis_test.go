//go:build integration

package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intecmar/cop-loc-etl/internal/domain"
)

// TestIngestPostGIS stores a grid plume in PostGIS and checks that the
// geometries round-trip and that a second ingestion adds nothing.
func TestIngestPostGIS(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	store := startPostGIS(ctx, t)
	ing := newIngester(store)
	job := plumeJob(t, "postgis")

	report, err := ing.Ingest(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, []string{"PAC-1", "PAC-2"}, report.Stored)
	require.Len(t, report.Omitted, 1)
	assert.Equal(t, "PAC-3", report.Omitted[0].Name)
	assert.Equal(t, time.Date(2024, time.March, 14, 6, 0, 0, 0, time.UTC), report.InitialDate)

	n, err := store.Count(ctx, domain.EntityLine)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sess, err := store.Session(ctx)
	require.NoError(t, err)
	defer sess.Close()
	modelID, err := sess.ResolveModel(ctx, job.Model)
	require.NoError(t, err)
	campaignID, err := sess.ResolveCampaign(ctx, job.Campaign.Name, job.Campaign.Description)
	require.NoError(t, err)
	simID, err := sess.ResolveSimulation(ctx, domain.SimulationKey{
		CampaignID: campaignID, ModelID: modelID, Name: job.Simulation.Name,
	}, job.Simulation.Description)
	require.NoError(t, err)
	outID, err := sess.ResolveOutput(ctx, domain.NewOutputKey(simID, report.InitialDate, domain.OutputTypeLOCAreas))
	require.NoError(t, err)
	locID, err := sess.ResolveLoc(ctx, outID, domain.LocTypePAC)
	require.NoError(t, err)

	lines, err := store.Lines(ctx, locID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.Contains(t, l.Envelope, "POLYGON")
	}

	again, err := ing.Ingest(ctx, job)
	require.NoError(t, err)
	assert.Empty(t, again.Stored)
	assert.Equal(t, []string{"PAC-1", "PAC-2"}, again.Existing)

	n, err = store.Count(ctx, domain.EntityLine)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = store.Count(ctx, domain.EntityOutput)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
