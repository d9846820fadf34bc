package data

import (
	"sort"
	"time"

	"geo-insight/internal/models"
)

// BuildTrace monta a série de um sensor a partir dos pontos do buffer
// (mais recente primeiro). sensorID vazio usa todos os pontos. Pontos sem
// valor plotável ou com timestamp ilegível ficam de fora.
func BuildTrace(points []models.Point, sensorID string, maxPoints, decimation int) models.Trace {
	trace := models.Trace{
		SensorID:   sensorID,
		Times:      []int64{},
		Values:     []float64{},
		LastUpdate: time.Now().UnixMilli(),
	}

	// Percorre do mais antigo para o mais recente
	for i := len(points) - 1; i >= 0; i-- {
		p := &points[i]
		if sensorID != "" && (p.SensorID == nil || *p.SensorID != sensorID) {
			continue
		}
		if !p.HasValidValue() {
			continue
		}
		ts, ok := p.Timestamp.Time()
		if !ok {
			continue
		}
		trace.Times = append(trace.Times, ts.UnixMilli())
		trace.Values = append(trace.Values, p.Value)
	}

	// Aplica decimação se necessário
	if decimation > 1 {
		n := 0
		for i := 0; i < len(trace.Times); i += decimation {
			trace.Times[n] = trace.Times[i]
			trace.Values[n] = trace.Values[i]
			n++
		}
		trace.Times = trace.Times[:n]
		trace.Values = trace.Values[:n]
	}

	// Limita número de pontos, mantendo os mais recentes
	if maxPoints > 0 && len(trace.Times) > maxPoints {
		trace.Times = trace.Times[len(trace.Times)-maxPoints:]
		trace.Values = trace.Values[len(trace.Values)-maxPoints:]
	}

	trace.PointCount = len(trace.Values)
	if trace.PointCount == 0 {
		return trace
	}

	trace.YMin, trace.YMax = trace.Values[0], trace.Values[0]
	for _, v := range trace.Values {
		if v < trace.YMin {
			trace.YMin = v
		}
		if v > trace.YMax {
			trace.YMax = v
		}
	}
	trace.YRange = trace.YMax - trace.YMin
	if trace.YRange == 0 {
		trace.YRange = 1.0
	}
	if trace.PointCount > 1 {
		trace.TimeSpan = float64(trace.Times[trace.PointCount-1]-trace.Times[0]) / 1000.0
	}
	return trace
}

// SensorIDs lista os sensores presentes nos pontos, em ordem alfabética
func SensorIDs(points []models.Point) []string {
	seen := make(map[string]struct{})
	for _, p := range points {
		if p.SensorID != nil {
			seen[*p.SensorID] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
