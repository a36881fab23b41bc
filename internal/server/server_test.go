package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchboard/internal/config"
	"benchboard/internal/controller"
	"benchboard/internal/model"
	"benchboard/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestHandler wires a full server against a file store in a temp directory.
// Cache, firehose and archiver stay nil, as in a minimal deployment.
func newTestHandler(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()

	cfg.Storage.DataDir = t.TempDir()
	st, err := store.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close(context.Background()) })

	staleness := time.Duration(cfg.Dashboard.StalenessSeconds) * time.Second
	marks := controller.NewBestTracker()
	teamController := controller.NewTeamController(st, nil, marks, staleness)
	rc := controller.NewReportController(st, nil, nil, nil, nil, marks, staleness)
	sc := controller.NewServer(st, nil, nil)

	srv := Server{
		sc:             sc,
		rc:             rc,
		teamController: teamController,
		config:         cfg,
	}
	return srv.RegisterRoutes()
}

func validReportBody(t *testing.T) []byte {
	t.Helper()

	buckets := make([]int64, model.NumLatencyBuckets)
	buckets[0] = 95
	report := &model.StatsReport{
		TotalElapsed: 10,
		TotalSent:    100,
		TotalOps:     95,
		TotalErrors:  5,
		Operations: model.OperationsStats{
			model.OpSensorData: {Operations: 95, Errors: 5},
		},
		HighPriorityStats: model.HighPriorityStats{
			Counts:     map[model.OperationKind]int64{model.OpSensorData: 20},
			TotalCount: 20,
		},
		LatencyAnalysis: model.LatencyAnalysis{
			model.OpSensorData: {Avg: 5, Min: 1, Max: 50, Buckets: buckets},
		},
	}

	body, err := json.Marshal(report)
	require.NoError(t, err)
	return body
}

func submitReport(handler http.Handler, teamID, teamName string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/stats/report", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if teamID != "" {
		req.Header.Set("X-Team-ID", teamID)
	}
	if teamName != "" {
		req.Header.Set("X-Team-Name", teamName)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestSubmitAndReadBack(t *testing.T) {
	handler := newTestHandler(t, config.Default())

	w := submitReport(handler, "alpha", "Team%20Alpha", validReportBody(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var submitted map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	assert.Equal(t, "Stats submitted successfully", submitted["message"])
	assert.Equal(t, "alpha", submitted["team_id"])

	w = get(handler, "/api/teams")
	require.Equal(t, http.StatusOK, w.Code)
	var teams []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &teams))
	require.Len(t, teams, 1)
	assert.Equal(t, "alpha", teams[0]["team_id"])
	// The URL-encoded header name arrives decoded.
	assert.Equal(t, "Team Alpha", teams[0]["team_name"])
	assert.Equal(t, true, teams[0]["is_active"])

	w = get(handler, "/api/teams/alpha")
	require.Equal(t, http.StatusOK, w.Code)
	var snapshot map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, "alpha", snapshot["team_id"])
	metricsBlock, ok := snapshot["metrics"].(map[string]interface{})
	require.True(t, ok)
	// errorRate is recomputed server-side from totalErrors/totalSent.
	assert.InDelta(t, 5.0, metricsBlock["data_loss_rate"], 1e-9)
	stats, ok := snapshot["stats"].(map[string]interface{})
	require.True(t, ok)
	perf, ok := stats["performanceMetrics"].(map[string]interface{})
	require.True(t, ok)
	assert.InDelta(t, 5.0, perf["errorRate"], 1e-9)
}

func TestSubmitRequiresTeamID(t *testing.T) {
	handler := newTestHandler(t, config.Default())

	w := submitReport(handler, "", "Name", validReportBody(t))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "X-Team-ID")
}

func TestSubmitRejectsUnsafeTeamID(t *testing.T) {
	handler := newTestHandler(t, config.Default())

	for _, teamID := range []string{"..", "a/b", `a\b`} {
		w := submitReport(handler, teamID, "Name", validReportBody(t))
		assert.Equal(t, http.StatusBadRequest, w.Code, "team id %q", teamID)
	}
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	handler := newTestHandler(t, config.Default())

	w := submitReport(handler, "alpha", "", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitRejectsInvalidReport(t *testing.T) {
	handler := newTestHandler(t, config.Default())

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(validReportBody(t), &payload))
	payload["totalErrors"] = -1
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	w := submitReport(handler, "alpha", "", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "totalErrors")

	// Nothing was stored.
	assert.Equal(t, http.StatusNotFound, get(handler, "/api/teams/alpha").Code)
}

func TestSubmitDefaultsTeamName(t *testing.T) {
	handler := newTestHandler(t, config.Default())

	require.Equal(t, http.StatusOK, submitReport(handler, "alpha", "", validReportBody(t)).Code)

	w := get(handler, "/api/teams/alpha")
	require.Equal(t, http.StatusOK, w.Code)
	var snapshot map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, "Team-alpha", snapshot["team_name"])
}

func TestUnknownTeamReads(t *testing.T) {
	handler := newTestHandler(t, config.Default())

	for _, path := range []string{
		"/api/teams/nobody",
		"/api/teams/nobody/history",
		"/api/teams/nobody/history/summary",
	} {
		w := get(handler, path)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Contains(t, w.Body.String(), "Team not found")
	}
}

func TestHistoryPaging(t *testing.T) {
	handler := newTestHandler(t, config.Default())

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, submitReport(handler, "alpha", "", validReportBody(t)).Code)
	}

	w := get(handler, "/api/teams/alpha/history?limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	var page map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, float64(3), page["total"])
	assert.Equal(t, float64(2), page["limit"])
	assert.Equal(t, float64(0), page["offset"])
	assert.Equal(t, true, page["has_more"])
	history, ok := page["history"].([]interface{})
	require.True(t, ok)
	assert.Len(t, history, 2)
	entry, ok := history[0].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, entry, "metrics")

	w = get(handler, "/api/teams/alpha/history?limit=2&offset=2")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, false, page["has_more"])
	assert.Len(t, page["history"], 1)
}

func TestHistoryRejectsBadPaging(t *testing.T) {
	handler := newTestHandler(t, config.Default())
	require.Equal(t, http.StatusOK, submitReport(handler, "alpha", "", validReportBody(t)).Code)

	for _, path := range []string{
		"/api/teams/alpha/history?limit=0",
		"/api/teams/alpha/history?limit=-1",
		"/api/teams/alpha/history?limit=abc",
		"/api/teams/alpha/history?offset=-1",
		"/api/teams/alpha/history?offset=abc",
	} {
		assert.Equal(t, http.StatusBadRequest, get(handler, path).Code, path)
	}
}

func TestHistorySummary(t *testing.T) {
	handler := newTestHandler(t, config.Default())

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, submitReport(handler, "alpha", "", validReportBody(t)).Code)
	}

	w := get(handler, "/api/teams/alpha/history/summary")
	require.Equal(t, http.StatusOK, w.Code)
	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "alpha", summary["team_id"])
	assert.Equal(t, float64(2), summary["total_reports"])
	assert.NotNil(t, summary["first_report"])
	assert.NotNil(t, summary["last_report"])
	files, ok := summary["recent_files"].([]interface{})
	require.True(t, ok)
	assert.Len(t, files, 2)
}

func TestIngestToken(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.IngestToken = "secret"
	handler := newTestHandler(t, cfg)

	body := validReportBody(t)

	w := submitReport(handler, "alpha", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/stats/report", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Team-ID", "alpha")
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/stats/report", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Team-ID", "alpha")
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Reads stay open even with a token configured.
	assert.Equal(t, http.StatusOK, get(handler, "/api/teams").Code)
}

func TestHealthEndpoints(t *testing.T) {
	handler := newTestHandler(t, config.Default())

	w := get(handler, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = get(handler, "/online")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Online", w.Body.String())
}
