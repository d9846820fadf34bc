package data

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geo-insight/internal/models"
)

func TestComputeStats(t *testing.T) {
	t.Parallel()

	points := []models.Point{
		typedPoint("1", "temperature", "a", 10),
		typedPoint("2", "temperature", "b", 30),
		typedPoint("3", "humidity", "a", 50),
		point("4", -5),
		point("5", math.NaN()),
	}

	got := ComputeStats(points)
	want := models.BufferStats{
		TotalPoints: 5,
		ByType: map[string]models.SensorTypeStats{
			"temperature":     {Count: 2, Sum: floatPtr(40), Min: 10, Max: 30, Avg: 20},
			"humidity":        {Count: 1, Sum: floatPtr(50), Min: 50, Max: 50, Avg: 50},
			UnknownSensorType: {Count: 1, Sum: floatPtr(-5), Min: -5, Max: -5, Avg: -5},
		},
		ValueRange: &models.Range{Min: -5, Max: 50},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ComputeStats mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeStatsNearFloatLimits(t *testing.T) {
	t.Parallel()

	points := []models.Point{
		typedPoint("1", "strain", "a", 1.7e308),
		typedPoint("2", "strain", "b", 1.7e308),
		typedPoint("3", "load", "a", math.MaxFloat64),
		typedPoint("4", "load", "b", -math.MaxFloat64),
	}

	got := ComputeStats(points)

	strain := got.ByType["strain"]
	assert.Nil(t, strain.Sum)
	assert.InDelta(t, 1.7e308, strain.Avg, 1e293)

	load := got.ByType["load"]
	require.NotNil(t, load.Sum)
	assert.Equal(t, 0.0, *load.Sum)
	assert.Equal(t, 0.0, load.Avg)

	_, err := json.Marshal(got)
	assert.NoError(t, err)
}

func TestComputeStatsEmpty(t *testing.T) {
	t.Parallel()

	got := ComputeStats(nil)
	assert.Equal(t, 0, got.TotalPoints)
	assert.Empty(t, got.ByType)
	assert.Nil(t, got.ValueRange)
}

func TestComputeStatsFollowsBuffer(t *testing.T) {
	t.Parallel()

	b := NewPointBuffer(2)
	b.Insert(point("1", 100))
	b.Insert(point("2", 1))
	b.Insert(point("3", 2))

	stats := b.Stats()
	require.NotNil(t, stats.ValueRange)
	assert.Equal(t, models.Range{Min: 1, Max: 2}, *stats.ValueRange)
}

func TestComputeRanges(t *testing.T) {
	t.Parallel()

	x1, x2, nan := 1.0, -3.0, math.NaN()
	points := []models.Point{
		{ID: "a", Value: 5, X: &x1, Y: &nan},
		{ID: "b", Value: math.NaN(), X: &x2},
		{ID: "c", Value: 7},
	}

	r := ComputeRanges(points)
	require.NotNil(t, r.Value)
	assert.Equal(t, models.Range{Min: 5, Max: 7}, *r.Value)
	require.NotNil(t, r.X)
	assert.Equal(t, models.Range{Min: -3, Max: 1}, *r.X)
	assert.Nil(t, r.Y)
	assert.Nil(t, r.Z)
}

func floatPtr(v float64) *float64 {
	return &v
}
