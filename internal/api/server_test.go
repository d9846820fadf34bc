package api

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"geo-insight/internal/auth"
	"geo-insight/internal/config"
	"geo-insight/internal/configurator"
	"geo-insight/internal/data"
	"geo-insight/internal/mapping"
	"geo-insight/internal/metrics"
	"geo-insight/internal/models"
	"geo-insight/internal/session"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	t   *testing.T
	srv *httptest.Server
	db  *data.Database
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	metrics.Init()

	db, err := data.NewDatabase(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sessions, err := session.NewManager(session.Options{
		Transport: config.TransportConfig{URL: "ws://127.0.0.1:1/ws", Limit: 100},
		Tokens:    auth.TokenFunc(func(context.Context) (string, error) { return "tok", nil }),
		Store:     db,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(sessions.Stop)

	srv := httptest.NewServer(New(Options{Sessions: sessions, Logger: zerolog.Nop()}).Handler())
	t.Cleanup(srv.Close)
	return &fixture{t: t, srv: srv, db: db}
}

func (f *fixture) do(method, path, body string) *http.Response {
	f.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(f.t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// snapshotView evita decodificar pontos, cujo timestamp só serializa
type snapshotView struct {
	State   configurator.State `json:"state"`
	Config  mapping.Config     `json:"config"`
	Samples []json.RawMessage  `json:"samples"`
	Preview previewView        `json:"preview"`
}

type previewView struct {
	Points  []json.RawMessage `json:"points"`
	Samples int               `json:"samples"`
}

func (f *fixture) openDemo() {
	f.t.Helper()
	resp := f.do("POST", "/api/v1/datasets/demo?connect=false", "")
	require.Equal(f.t, http.StatusCreated, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	resp := f.do("GET", "/api/v1/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]interface{}](t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, Version, body["version"])

	resp = f.do("GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownDatasetIs404(t *testing.T) {
	f := newFixture(t)

	resp := f.do("GET", "/api/v1/datasets/missing/points", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	errResp := decode[models.ErrorResponse](t, resp)
	assert.Equal(t, http.StatusNotFound, errResp.Code)
	assert.Contains(t, errResp.Message, "unknown dataset")
}

func TestDatasetLifecycle(t *testing.T) {
	f := newFixture(t)
	f.openDemo()

	resp := f.do("GET", "/api/v1/datasets", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	states := decode[[]map[string]interface{}](t, resp)
	require.Len(t, states, 1)
	assert.Equal(t, "demo", states[0]["datasetId"])

	resp = f.do("GET", "/api/v1/datasets/demo/points", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]models.Point](t, resp))

	resp = f.do("PUT", "/api/v1/datasets/demo/filters", `{"sensorType":"temp"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.Filters{SensorType: "temp"}, decode[models.Filters](t, resp))

	resp = f.do("DELETE", "/api/v1/datasets/demo/filters", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[models.Filters](t, resp).IsZero())

	resp = f.do("PUT", "/api/v1/datasets/demo/limit", `{"limit":50000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, data.MaxPointLimit, decode[limitRequest](t, resp).Limit)

	resp = f.do("PUT", "/api/v1/datasets/demo/limit", `{"limit":"many"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do("POST", "/api/v1/datasets/demo/history", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do("POST", "/api/v1/datasets/demo/clear", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do("GET", "/api/v1/datasets/demo/trace?maxPoints=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, decode[models.Trace](t, resp).PointCount)

	resp = f.do("GET", "/api/v1/datasets/demo/stats", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	f.openDemo()

	resp := f.do("GET", "/api/v1/datasets/demo/export/csv", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "geo_insight_demo_")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "id,timestamp,value"))

	resp = f.do("GET", "/api/v1/datasets/demo/export/xml", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPutMapping(t *testing.T) {
	f := newFixture(t)
	f.openDemo()

	resp := f.do("PUT", "/api/v1/datasets/demo/mapping", `{"valuePath":"v"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do("PUT", "/api/v1/datasets/demo/mapping", `{"valuePath":"items[0].v","timestampPath":"ts"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do("PUT", "/api/v1/datasets/demo/mapping", `{"valuePath":"reading.v","timestampPath":"ts"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do("GET", "/api/v1/datasets/demo/mapping", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	want := mapping.Config{ValuePath: "reading.v", TimestampPath: "ts"}
	assert.Equal(t, want, decode[mapping.Config](t, resp))

	saved, err := f.db.LoadMapping(context.Background(), "demo")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, want, saved.Config)

	require.NoError(t, f.db.SaveMapping(context.Background(), "offline", mapping.Config{ValuePath: "v", TimestampPath: "t"}))
	resp = f.do("GET", "/api/v1/mappings", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decode[[]data.DatasetMapping](t, resp)
	ids := make([]string, len(listed))
	for i, m := range listed {
		ids[i] = m.DatasetID
	}
	assert.ElementsMatch(t, []string{"demo", "offline"}, ids)
}

func TestListMappingsEmpty(t *testing.T) {
	f := newFixture(t)

	resp := f.do("GET", "/api/v1/mappings", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]data.DatasetMapping](t, resp))
}

func TestConfiguratorFlow(t *testing.T) {
	f := newFixture(t)
	f.openDemo()
	base := "/api/v1/datasets/demo/configurator"

	resp := f.do("GET", base, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do("POST", base, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	snap := decode[snapshotView](t, resp)
	assert.Equal(t, configurator.StateWaitingForSamples, snap.State)

	resp = f.do("POST", base+"/save", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errResp := decode[models.ErrorResponse](t, resp)
	assert.NotEmpty(t, errResp.Details)

	resp = f.do("POST", base+"/samples", `{"reading":{"temp":21.5},"meta":{"ts":"2025-01-01T00:00:00Z"}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	snap = decode[snapshotView](t, resp)
	assert.Equal(t, configurator.StateEditing, snap.State)
	assert.Equal(t, "reading.temp", snap.Config.ValuePath)
	assert.Equal(t, "meta.ts", snap.Config.TimestampPath)
	require.Len(t, snap.Samples, 1)
	assert.Len(t, snap.Preview.Points, 1)

	resp = f.do("POST", base+"/samples", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do("PUT", base+"/paths/bogus", `{"path":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do("PUT", base+"/paths/timestamp", `{"path":"meta.missing"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do("POST", base+"/validate", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	validation := decode[map[string]interface{}](t, resp)
	assert.Equal(t, false, validation["valid"])

	resp = f.do("PUT", base+"/paths/timestamp", `{"path":"meta.ts"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do("POST", base+"/validate", "")
	assert.Equal(t, true, decode[map[string]interface{}](t, resp)["valid"])

	resp = f.do("PUT", base+"/selected", `{"id":"nope"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do("GET", base+"/preview", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[previewView](t, resp).Samples)

	resp = f.do("POST", base+"/save", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do("GET", "/api/v1/datasets/demo/mapping", "")
	assert.Equal(t, "reading.temp", decode[mapping.Config](t, resp).ValuePath)

	resp = f.do("GET", base, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "saving closes the session")

	resp = f.do("DELETE", base, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWriteJSONEncodingFailure(t *testing.T) {
	var logs strings.Builder
	s := &Server{logger: zerolog.New(&logs)}

	rec := httptest.NewRecorder()
	s.writeJSON(rec, http.StatusOK, map[string]float64{"avg": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var errResp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, http.StatusInternalServerError, errResp.Code)
	assert.Contains(t, logs.String(), "response encoding failed")

	rec = httptest.NewRecorder()
	s.writeJSON(rec, http.StatusOK, data.ComputeStats([]models.Point{
		{ID: "1", Value: 1.7e308},
		{ID: "2", Value: 1.7e308},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	byType := stats["byType"].(map[string]interface{})[data.UnknownSensorType].(map[string]interface{})
	assert.Nil(t, byType["sum"])
	assert.Equal(t, 1.7e308, byType["avg"])
}
