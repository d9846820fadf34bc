package session

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"geo-insight/internal/auth"
	"geo-insight/internal/config"
	"geo-insight/internal/configurator"
	"geo-insight/internal/data"
	"geo-insight/internal/mapping"
	"geo-insight/internal/models"
	"geo-insight/internal/payload"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *data.Database) {
	t.Helper()
	db, err := data.NewDatabase(filepath.Join(t.TempDir(), "mappings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m, err := NewManager(Options{
		Transport: config.TransportConfig{
			URL:      "ws://127.0.0.1:1/ws",
			Datasets: []string{"demo"},
			Limit:    100,
		},
		Tokens: auth.TokenFunc(func(context.Context) (string, error) { return "tok", nil }),
		Store:  db,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return m, db
}

func TestNewManagerRequiresCollaborators(t *testing.T) {
	_, err := NewManager(Options{})
	assert.Error(t, err)
}

func TestOpenLoadsSavedMapping(t *testing.T) {
	m, db := newTestManager(t)
	ctx := context.Background()

	saved := mapping.Config{ValuePath: "reading.temp", TimestampPath: "meta.ts"}
	require.NoError(t, db.SaveMapping(ctx, "greenhouse", saved))

	ds, err := m.Open(ctx, "greenhouse")
	require.NoError(t, err)
	assert.Equal(t, saved, ds.Mapping.Load())
	assert.Equal(t, models.StatusDisconnected, ds.Client.Status())

	again, err := m.Open(ctx, "greenhouse")
	require.NoError(t, err)
	assert.Same(t, ds, again)

	fresh, err := m.Open(ctx, "other")
	require.NoError(t, err)
	assert.True(t, fresh.Mapping.Load().IsEmpty())

	assert.Equal(t, []string{"greenhouse", "other"}, m.Datasets())
	assert.Len(t, m.States(), 2)

	_, err = m.Open(ctx, "")
	assert.Error(t, err)
}

func TestConfiguratorSaveActivatesMapping(t *testing.T) {
	m, db := newTestManager(t)
	ctx := context.Background()
	ds, err := m.Open(ctx, "demo")
	require.NoError(t, err)

	_, err = m.Configurator("demo")
	assert.ErrorIs(t, err, ErrNoConfigurator)

	cfgr, err := m.OpenConfigurator("demo")
	require.NoError(t, err)

	v, err := payload.Decode([]byte(`{"temperature":{"value":21},"meta":{"ts":"2025-10-15T10:00:00Z"}}`))
	require.NoError(t, err)
	cfgr.AddSample(models.RawMessage{ID: "s1", ReceivedAt: time.Now(), Payload: v})

	got, err := m.Configurator("demo")
	require.NoError(t, err)
	assert.Same(t, cfgr, got)

	require.NoError(t, cfgr.Save(ctx))
	assert.Equal(t, configurator.StateClosed, cfgr.State())

	want := mapping.Config{ValuePath: "temperature.value", TimestampPath: "meta.ts"}
	assert.Equal(t, want, ds.Mapping.Load())

	stored, err := db.LoadMapping(ctx, "demo")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, want, stored.Config)

	all, err := m.SavedMappings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "demo", all[0].DatasetID)

	_, err = m.Configurator("demo")
	assert.ErrorIs(t, err, ErrNoConfigurator)
}

func TestOpenConfiguratorReplacesPrevious(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Open(context.Background(), "demo")
	require.NoError(t, err)

	first, err := m.OpenConfigurator("demo")
	require.NoError(t, err)
	second, err := m.OpenConfigurator("demo")
	require.NoError(t, err)

	assert.Equal(t, configurator.StateClosed, first.State())
	assert.Equal(t, configurator.StateWaitingForSamples, second.State())

	require.NoError(t, m.CloseConfigurator("demo"))
	assert.Equal(t, configurator.StateClosed, second.State())
	assert.ErrorIs(t, m.CloseConfigurator("demo"), ErrNoConfigurator)
}

func TestUnknownDataset(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.OpenConfigurator("nope")
	assert.ErrorIs(t, err, ErrUnknownDataset)
	assert.ErrorIs(t, m.SaveMapping(context.Background(), "nope", mapping.Config{}), ErrUnknownDataset)
	_, _, _, err = m.ExportData("nope", "csv")
	assert.ErrorIs(t, err, ErrUnknownDataset)
}

func TestSaveMappingDirect(t *testing.T) {
	m, db := newTestManager(t)
	ctx := context.Background()
	ds, err := m.Open(ctx, "demo")
	require.NoError(t, err)

	assert.Error(t, m.SaveMapping(ctx, "demo", mapping.Config{ValuePath: "v"}))

	cfg := mapping.Config{ValuePath: "v", TimestampPath: "t"}
	require.NoError(t, m.SaveMapping(ctx, "demo", cfg))
	assert.Equal(t, cfg, ds.Mapping.Load())

	stored, err := db.LoadMapping(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, cfg, stored.Config)
}

func TestExportFormats(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Open(context.Background(), "demo")
	require.NoError(t, err)

	body, contentType, filename, err := m.ExportData("demo", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.True(t, strings.HasPrefix(filename, "geo_insight_demo_"))
	assert.Equal(t, "id,timestamp,value,x,y,z,sensor_id,sensor_type,unit\n", string(body))

	_, _, _, err = m.ExportData("demo", "xml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExportCSVRows(t *testing.T) {
	x := 1.5
	sensor := "s-1"
	points := []models.Point{
		{ID: "p1", Value: 42, X: &x, SensorID: &sensor, Timestamp: models.NewTimestamp("2025-01-01")},
		{ID: "p2", Value: 0.25, Timestamp: models.NewTimestamp(1735689600000.0)},
	}

	body, _, filename, err := exportCSV("demo", points)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(filename, ".csv"))
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "p1,2025-01-01,42,1.5,,,s-1,,", lines[1])
	assert.Equal(t, "p2,1735689600000,0.25,,,,,,", lines[2])
}

func TestExportJSONDocument(t *testing.T) {
	points := []models.Point{{ID: "p1", Value: 1, Timestamp: models.NewTimestamp("t")}}

	body, contentType, _, err := exportJSON("demo", points)
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)

	var doc struct {
		Metadata struct {
			TotalPoints int    `json:"total_points"`
			DatasetID   string `json:"dataset_id"`
		} `json:"metadata"`
		Points []map[string]any `json:"points"`
	}
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, 1, doc.Metadata.TotalPoints)
	assert.Equal(t, "demo", doc.Metadata.DatasetID)
	require.Len(t, doc.Points, 1)
	assert.Equal(t, "p1", doc.Points[0]["id"])
	assert.Nil(t, doc.Points[0]["x"])
}
