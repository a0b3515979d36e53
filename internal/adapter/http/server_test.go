package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/intecmar/cop-loc-etl/internal/adapter/http"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

func newTestServer(dbErr, pipelineErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", slog.New(slog.NewTextHandler(io.Discard, nil)),
		httpadapter.Check{Name: "database", Checker: &mockReadiness{err: dbErr}},
		httpadapter.Check{Name: "pipeline", Checker: &mockReadiness{err: pipelineErr}},
	)
}

type readyBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func get(t *testing.T, srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenAllChecksPass(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body readyBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, map[string]string{"database": "ok", "pipeline": "ok"}, body.Checks)
}

func TestReadyzReturns503WhenAnyCheckFails(t *testing.T) {
	rec := get(t, newTestServer(nil, errors.New("pipeline has not processed any jobs yet")), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body readyBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Equal(t, "pipeline has not processed any jobs yet", body.Checks["pipeline"])
}

func TestReadyzWithoutChecks(t *testing.T) {
	srv := httpadapter.NewServer(":0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, http.StatusOK, get(t, srv, "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
