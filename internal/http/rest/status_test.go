package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/asset_harvester/internal/downloader"
	"github.com/italolelis/asset_harvester/internal/run"
	"github.com/italolelis/asset_harvester/internal/telemetry"
)

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestStatusHandler_Health(t *testing.T) {
	h := NewStatusHandler(run.NewStatus(), nil).Routes()

	rec := serve(t, h, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(telemetry.RequestIDHeader))
}

func TestStatusHandler_Status(t *testing.T) {
	status := run.NewStatus()
	status.Begin("run-42")
	status.Enter(run.PhaseDownloading, "EN", 10)
	status.Advance(downloader.Result{})

	h := NewStatusHandler(status, nil).Routes()

	rec := serve(t, h, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap run.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))

	assert.Equal(t, "run-42", snap.RunID)
	assert.Equal(t, run.PhaseDownloading, snap.Phase)
	assert.Equal(t, "EN", snap.Lang)
	assert.Equal(t, 1, snap.Processed)
	assert.Equal(t, 10, snap.Total)
}

func TestStatusHandler_Report(t *testing.T) {
	status := run.NewStatus()
	h := NewStatusHandler(status, nil).Routes()

	assert.Equal(t, http.StatusNotFound, serve(t, h, "/report").Code)

	status.Report(downloader.NewReport([]downloader.Result{
		{URL: "https://x/a.png", Outcome: downloader.OutcomeDownloaded, Bytes: 3},
		{URL: "https://x/b.png", Outcome: downloader.OutcomeFailed, Err: &downloader.DownloadError{StatusCode: 404}},
	}))

	rec := serve(t, h, "/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"total":2,"downloaded":1,"skipped":0,"failed":1,"bytes":3,"failures":[["https://x/b.png","status 404"]]}`,
		rec.Body.String())
}

func TestStatusHandler_Metrics(t *testing.T) {
	rec := serve(t, NewStatusHandler(run.NewStatus(), nil).Routes(), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	tel, err := telemetry.New(context.Background(), telemetry.Config{Enabled: true, ServiceName: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	h := NewStatusHandler(run.NewStatus(), tel).Routes()

	serve(t, h, "/healthz")

	rec = serve(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
