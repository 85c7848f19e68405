package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/probehost/internal/batch"
	"github.com/GriffinCanCode/probehost/internal/history"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/probehost/internal/plugin"
	"github.com/GriffinCanCode/probehost/internal/settings"
)

type fakeStarter struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeStarter) Start(ctx context.Context, batchID string, pluginIDs []string) batch.Started {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pluginIDs)
	if batchID == "" {
		batchID = "generated"
	}
	return batch.Started{BatchID: batchID, PluginIDs: pluginIDs}
}

func setupRouter(t *testing.T) (*gin.Engine, *fakeStarter, Deps) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := plugin.NewRegistry(nil, nil)
	for _, pid := range []string{"alpha", "beta"} {
		reg.Add(&plugin.Plugin{Manifest: &plugin.Manifest{ID: pid, Name: strings.ToUpper(pid), Version: "1.0.0"}})
	}

	starter := &fakeStarter{}
	deps := Deps{
		Registry: reg,
		Batches:  starter,
		Settings: settings.NewStore(filepath.Join(t.TempDir(), "settings.json")),
		History:  history.New(10),
		Metrics:  monitoring.NewMetrics(),
		Version:  "test",
	}

	r := gin.New()
	NewHandlers(deps).Register(r)
	return r, starter, deps
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _, _ := setupRouter(t)

	w := do(r, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.EqualValues(t, 2, body["plugins"])
}

func TestListPlugins(t *testing.T) {
	r, _, _ := setupRouter(t)

	w := do(r, http.MethodGet, "/api/plugins", "")
	require.Equal(t, http.StatusOK, w.Code)

	var metas []plugin.Meta
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metas))
	require.Len(t, metas, 2)
	assert.Equal(t, "alpha", metas[0].ID)
	assert.Equal(t, "BETA", metas[1].Name)
}

func TestPluginStats(t *testing.T) {
	r, _, deps := setupRouter(t)
	deps.History.Add("alpha", history.Record{RunID: "r1", Outcome: "ok", Duration: 20 * time.Millisecond, At: time.Now()})

	w := do(r, http.MethodGet, "/api/plugins/alpha/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Stats  history.Stats    `json:"stats"`
		Recent []history.Record `json:"recent"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Stats.Count)
	assert.InDelta(t, 20.0, body.Stats.MeanMs, 0.001)
	require.Len(t, body.Recent, 1)
	assert.Equal(t, "r1", body.Recent[0].RunID)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/plugins/gamma/stats", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/plugins/Bad.ID/stats", "").Code)
}

func TestStartBatch(t *testing.T) {
	r, starter, _ := setupRouter(t)

	w := do(r, http.MethodPost, "/api/batches", `{"batchId":"b1","pluginIds":["beta"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var started batch.Started
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.Equal(t, "b1", started.BatchID)
	assert.Equal(t, []string{"beta"}, started.PluginIDs)

	w = do(r, http.MethodPost, "/api/batches", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	w = do(r, http.MethodPost, "/api/batches", `{"pluginIds":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	starter.mu.Lock()
	defer starter.mu.Unlock()
	require.Len(t, starter.calls, 2)
	assert.Nil(t, starter.calls[1])
}

func TestSettingsRoundTrip(t *testing.T) {
	r, _, deps := setupRouter(t)

	w := do(r, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got settings.PluginSettings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []string{"alpha", "beta"}, got.Order)
	assert.Empty(t, got.Disabled)

	w = do(r, http.MethodPut, "/api/settings", `{"order":["beta","ghost","alpha"],"disabled":["alpha","ghost"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []string{"beta", "alpha"}, got.Order)
	assert.Equal(t, []string{"alpha"}, got.Disabled)

	stored, err := deps.Settings.Load()
	require.NoError(t, err)
	assert.Equal(t, got, stored)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/api/settings", `[1,2]`).Code)
}

func TestMetricsSnapshot(t *testing.T) {
	r, _, deps := setupRouter(t)
	deps.Metrics.RecordBatch(2)

	w := do(r, http.MethodGet, "/api/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snap monitoring.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.EqualValues(t, 1, snap.TotalBatches)
}
