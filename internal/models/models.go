package models

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"geo-insight/internal/payload"
)

// ConnectionStatus representa o estado da sessão de transporte
type ConnectionStatus string

const (
	StatusDisconnected   ConnectionStatus = "disconnected"
	StatusConnecting     ConnectionStatus = "connecting"
	StatusConnected      ConnectionStatus = "connected"
	StatusAuthenticating ConnectionStatus = "authenticating"
	StatusAuthenticated  ConnectionStatus = "authenticated"
	StatusSubscribed     ConnectionStatus = "subscribed"
	StatusError          ConnectionStatus = "error"
)

// RawMessage mensagem bruta recebida do transporte, mantida sem cópia
type RawMessage struct {
	ID         string        `json:"id"`
	ReceivedAt time.Time     `json:"timestamp"`
	Payload    payload.Value `json:"payload"`
}

// TimestampKind identifica a variante do Timestamp
type TimestampKind int

const (
	TimestampString TimestampKind = iota
	TimestampNumber
	TimestampOther
)

// Timestamp carrega o valor de tempo exatamente como veio da mensagem.
// A interpretação fica para quem consome (ver Time).
type Timestamp struct {
	Kind   TimestampKind
	String string
	Number float64
	Raw    payload.Value
}

// NewTimestamp embrulha o valor resolvido sem convertê-lo
func NewTimestamp(v payload.Value) Timestamp {
	switch t := v.(type) {
	case string:
		return Timestamp{Kind: TimestampString, String: t, Raw: v}
	case float64:
		return Timestamp{Kind: TimestampNumber, Number: t, Raw: v}
	default:
		return Timestamp{Kind: TimestampOther, Raw: v}
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time interpreta o timestamp. Números acima de 1e11 são tratados como
// epoch em milissegundos, abaixo disso como segundos.
func (t Timestamp) Time() (time.Time, bool) {
	switch t.Kind {
	case TimestampString:
		s := strings.TrimSpace(t.String)
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	case TimestampNumber:
		if math.IsNaN(t.Number) || math.IsInf(t.Number, 0) {
			return time.Time{}, false
		}
		if math.Abs(t.Number) >= 1e11 {
			return time.UnixMilli(int64(t.Number)).UTC(), true
		}
		sec, frac := math.Modf(t.Number)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	}
	return time.Time{}, false
}

// MarshalJSON devolve o valor original
func (t Timestamp) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case TimestampString:
		return json.Marshal(t.String)
	case TimestampNumber:
		return json.Marshal(t.Number)
	default:
		return json.Marshal(t.Raw)
	}
}

// Point ponto normalizado, imutável depois de criado
type Point struct {
	ID         string
	Value      float64
	X, Y, Z    *float64
	SensorID   *string
	SensorType *string
	Unit       *string
	Timestamp  Timestamp
}

type pointJSON struct {
	ID         string    `json:"id"`
	Value      *float64  `json:"value"`
	X          *float64  `json:"x"`
	Y          *float64  `json:"y"`
	Z          *float64  `json:"z"`
	SensorID   *string   `json:"sensorId"`
	SensorType *string   `json:"sensorType"`
	Unit       *string   `json:"unit"`
	Timestamp  Timestamp `json:"timestamp"`
}

// MarshalJSON serializa valores não finitos como null
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(pointJSON{
		ID:         p.ID,
		Value:      finite(&p.Value),
		X:          finite(p.X),
		Y:          finite(p.Y),
		Z:          finite(p.Z),
		SensorID:   p.SensorID,
		SensorType: p.SensorType,
		Unit:       p.Unit,
		Timestamp:  p.Timestamp,
	})
}

func finite(f *float64) *float64 {
	if f == nil || math.IsNaN(*f) || math.IsInf(*f, 0) {
		return nil
	}
	v := *f
	return &v
}

// HasValidValue indica se o valor pode ser plotado
func (p *Point) HasValidValue() bool {
	return !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0)
}

// Alert alerta emitido pelo servidor para um dataset
type Alert struct {
	ID        string    `json:"id"`
	DatasetID string    `json:"datasetId"`
	SensorID  string    `json:"sensorId,omitempty"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Metric    string    `json:"metric,omitempty"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Filters filtros ativos aplicados antes da inserção no buffer
type Filters struct {
	SensorType string `json:"sensorType,omitempty"`
	SensorID   string `json:"sensorId,omitempty"`
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
}

// IsZero indica ausência de filtros
func (f Filters) IsZero() bool {
	return f == Filters{}
}

// Matches testa igualdade de sensorType e sensorId. As datas só
// restringem o pedido de histórico.
func (f Filters) Matches(p *Point) bool {
	if f.SensorType != "" && (p.SensorType == nil || *p.SensorType != f.SensorType) {
		return false
	}
	if f.SensorID != "" && (p.SensorID == nil || *p.SensorID != f.SensorID) {
		return false
	}
	return true
}

// Range intervalo mínimo/máximo
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Extend amplia o intervalo para incluir v
func (r *Range) Extend(v float64) *Range {
	if r == nil {
		return &Range{Min: v, Max: v}
	}
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
	return r
}

// SensorTypeStats agregados por tipo de sensor
type SensorTypeStats struct {
	Count int      `json:"count"`
	Sum   *float64 `json:"sum"` // nil quando a soma estoura float64
	Min   float64  `json:"min"`
	Max   float64  `json:"max"`
	Avg   float64  `json:"avg"`
}

// BufferStats agregados calculados sob demanda sobre o buffer
type BufferStats struct {
	TotalPoints int                        `json:"totalPoints"`
	ByType      map[string]SensorTypeStats `json:"byType"`
	ValueRange  *Range                     `json:"valueRange"`
}

// PreviewRanges intervalos derivados usados na pré-visualização
type PreviewRanges struct {
	Value *Range `json:"value"`
	X     *Range `json:"x"`
	Y     *Range `json:"y"`
	Z     *Range `json:"z"`
}

// WebSocketMessage mensagem WebSocket para os navegadores
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ErrorResponse resposta de erro padronizada
type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Trace série de um sensor para plotagem, mais antigo primeiro
type Trace struct {
	SensorID   string    `json:"sensorId"`
	Times      []int64   `json:"times"`
	Values     []float64 `json:"values"`
	PointCount int       `json:"pointCount"`
	TimeSpan   float64   `json:"timeSpan"`
	YMin       float64   `json:"yMin"`
	YMax       float64   `json:"yMax"`
	YRange     float64   `json:"yRange"`
	LastUpdate int64     `json:"lastUpdate"`
}
