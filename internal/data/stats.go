package data

import (
	"math"

	"geo-insight/internal/models"
)

// UnknownSensorType agrupa pontos sem sensorType
const UnknownSensorType = "unknown"

// ComputeStats calcula count/sum/min/max/avg por tipo de sensor e o
// intervalo global de valores. Recalculado a cada chamada.
func ComputeStats(points []models.Point) models.BufferStats {
	stats := models.BufferStats{
		TotalPoints: len(points),
		ByType:      make(map[string]models.SensorTypeStats),
	}
	sums := make(map[string]float64)

	for i := range points {
		p := &points[i]
		if !p.HasValidValue() {
			continue
		}

		sensorType := UnknownSensorType
		if p.SensorType != nil && *p.SensorType != "" {
			sensorType = *p.SensorType
		}

		s, exists := stats.ByType[sensorType]
		if !exists {
			s = models.SensorTypeStats{Min: p.Value, Max: p.Value}
		}
		s.Count++
		sums[sensorType] += p.Value
		s.Avg = runningMean(s.Avg, p.Value, s.Count)
		if p.Value < s.Min {
			s.Min = p.Value
		}
		if p.Value > s.Max {
			s.Max = p.Value
		}
		stats.ByType[sensorType] = s

		stats.ValueRange = stats.ValueRange.Extend(p.Value)
	}

	for sensorType, s := range stats.ByType {
		if sum := sums[sensorType]; !math.IsInf(sum, 0) {
			s.Sum = &sum
		}
		stats.ByType[sensorType] = s
	}

	return stats
}

// runningMean média incremental; as parcelas divididas por n não estouram
// mesmo com valores perto de math.MaxFloat64
func runningMean(avg, v float64, n int) float64 {
	if n == 1 {
		return v
	}
	return avg - avg/float64(n) + v/float64(n)
}

// ComputeRanges intervalos de valor e coordenadas usados na
// pré-visualização; valores não finitos são ignorados
func ComputeRanges(points []models.Point) models.PreviewRanges {
	var r models.PreviewRanges
	for i := range points {
		p := &points[i]
		if p.HasValidValue() {
			r.Value = r.Value.Extend(p.Value)
		}
		r.X = extendOptional(r.X, p.X)
		r.Y = extendOptional(r.Y, p.Y)
		r.Z = extendOptional(r.Z, p.Z)
	}
	return r
}

func extendOptional(r *models.Range, v *float64) *models.Range {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return r
	}
	return r.Extend(*v)
}
