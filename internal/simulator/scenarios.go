package simulator

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"geo-insight/internal/payload"
)

// Scenario define um formato de payload e o sinal que ele carrega
type Scenario struct {
	Name        string
	Description string
	SensorType  string
	Unit        string
	Base        float64
	Amplitude   float64
	Frequency   float64
	AlertAbove  float64

	idFormat string
	shape    func(in shapeInput) *payload.Object
}

type shapeInput struct {
	sensor *sensorState
	value  float64
	now    time.Time
	rng    *rand.Rand
}

func (sc Scenario) sensorID(device string, n int) string {
	return fmt.Sprintf(sc.idFormat, device, n)
}

// Cenários predefinidos
var scenarios = map[string]Scenario{
	"environmental": {
		Name:        "environmental",
		Description: "Estação ambiental com leituras aninhadas e posição geográfica",
		SensorType:  "temperature",
		Unit:        "°C",
		Base:        24,
		Amplitude:   6,
		Frequency:   0.02,
		AlertAbove:  29,
		idFormat:    "%s_env_%d",
		shape:       environmentalShape,
	},
	"agv": {
		Name:        "agv",
		Description: "Frota de AGVs com posição cartesiana e timestamp epoch em ms",
		SensorType:  "agv",
		Unit:        "m/s",
		Base:        1.2,
		Amplitude:   0.8,
		Frequency:   0.1,
		AlertAbove:  1.9,
		idFormat:    "%s-agv-%02d",
		shape:       agvShape,
	},
	"mqtt": {
		Name:        "mqtt",
		Description: "Envelope MQTT com leitura em texto e unidade em uom",
		SensorType:  "pressure",
		Unit:        "kPa",
		Base:        101.3,
		Amplitude:   4,
		Frequency:   0.05,
		AlertAbove:  104.5,
		idFormat:    "%s-plc-%d",
		shape:       mqttShape,
	},
	"normalized": {
		Name:        "normalized",
		Description: "Pontos que já chegam no formato normalizado",
		SensorType:  "humidity",
		Unit:        "%",
		Base:        55,
		Amplitude:   15,
		Frequency:   0.03,
		AlertAbove:  68,
		idFormat:    "%s_hum_%d",
		shape:       normalizedShape,
	},
}

// Posições fixas por sensor, espalhadas em torno de um ponto de referência
func position(in shapeInput) (lat, lng float64) {
	angle := float64(in.sensor.index) * 2 * math.Pi / 7
	lat = -23.5505 + 0.01*math.Cos(angle)
	lng = -46.6333 + 0.01*math.Sin(angle)
	return round(lat, 6), round(lng, 6)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func environmentalShape(in shapeInput) *payload.Object {
	lat, lng := position(in)
	humidity := round(60-(in.value-24)*2+in.rng.Float64(), 1)
	return payload.NewObject().
		Set("temperature", payload.NewObject().
			Set("value", in.value).
			Set("unit", "°C")).
		Set("humidity", payload.NewObject().
			Set("value", humidity).
			Set("unit", "%")).
		Set("meta", payload.NewObject().
			Set("ts", in.now.UTC().Format(time.RFC3339Nano)).
			Set("id", in.sensor.id).
			Set("kind", "temperature")).
		Set("location", payload.NewObject().
			Set("lat", lat).
			Set("lng", lng))
}

func agvShape(in shapeInput) *payload.Object {
	t := float64(in.sensor.sequence) / 10
	radius := 5 + float64(in.sensor.index)*2
	return payload.NewObject().
		Set("deviceId", in.sensor.id).
		Set("type", "agv").
		Set("speed", in.value).
		Set("battery", round(in.sensor.battery, 2)).
		Set("position", payload.NewObject().
			Set("x", round(radius*math.Cos(t), 3)).
			Set("y", round(radius*math.Sin(t), 3)).
			Set("z", 0.0)).
		Set("timestamp", float64(in.now.UnixMilli()))
}

func mqttShape(in shapeInput) *payload.Object {
	return payload.NewObject().
		Set("topic", fmt.Sprintf("plant/line%d/pressure", in.sensor.index+1)).
		Set("qos", 1.0).
		Set("device_id", in.sensor.id).
		Set("payload", payload.NewObject().
			Set("reading", strconv.FormatFloat(in.value, 'f', 2, 64)).
			Set("uom", "kPa").
			Set("created", in.now.UTC().Format(time.RFC3339)))
}

func normalizedShape(in shapeInput) *payload.Object {
	lat, lng := position(in)
	return payload.NewObject().
		Set("value", in.value).
		Set("timestamp", in.now.UTC().Format(time.RFC3339Nano)).
		Set("x", lat).
		Set("y", lng).
		Set("z", 760.0).
		Set("sensorId", in.sensor.id).
		Set("sensorType", "humidity").
		Set("unit", "%").
		Set("id", uuid.NewString())
}
