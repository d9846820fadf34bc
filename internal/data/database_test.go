package data

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geo-insight/internal/mapping"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "mappings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDatabaseMappingRoundTrip(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	missing, err := db.LoadMapping(ctx, "ds-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	cfg := mapping.Config{
		ValuePath:      "temperature.value",
		TimestampPath:  "meta.ts",
		SensorIDPath:   "meta.id",
		SensorTypePath: "",
		UnitPath:       "temperature.unit",
	}
	require.NoError(t, db.SaveMapping(ctx, "ds-1", cfg))

	loaded, err := db.LoadMapping(ctx, "ds-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "ds-1", loaded.DatasetID)
	assert.Equal(t, cfg, loaded.Config)
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestDatabaseMappingOverwrite(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	require.NoError(t, db.SaveMapping(ctx, "ds-1", mapping.Config{ValuePath: "a", TimestampPath: "b"}))
	require.NoError(t, db.SaveMapping(ctx, "ds-1", mapping.Config{ValuePath: "c", TimestampPath: "d", XPath: "pos.x"}))
	require.NoError(t, db.SaveMapping(ctx, "ds-2", mapping.Config{ValuePath: "v", TimestampPath: "t"}))

	loaded, err := db.LoadMapping(ctx, "ds-1")
	require.NoError(t, err)
	assert.Equal(t, mapping.Config{ValuePath: "c", TimestampPath: "d", XPath: "pos.x"}, loaded.Config)

	all, err := db.ListMappings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDatabaseRejectsIncompleteMapping(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	assert.Error(t, db.SaveMapping(ctx, "ds-1", mapping.Config{ValuePath: "v"}))
	assert.Error(t, db.SaveMapping(ctx, "", mapping.Config{ValuePath: "v", TimestampPath: "t"}))

	save := db.MappingSaver("ds-1")
	ok, err := save(ctx, mapping.Config{ValuePath: "v"})
	assert.False(t, ok)
	assert.Error(t, err)

	ok, err = save(ctx, mapping.Config{ValuePath: "v", TimestampPath: "t"})
	assert.True(t, ok)
	assert.NoError(t, err)
}
