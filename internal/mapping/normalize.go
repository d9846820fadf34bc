package mapping

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"geo-insight/internal/models"
	"geo-insight/internal/payload"
)

// Normalize aplica a configuração a uma mensagem bruta. Retorna nil quando
// value ou timestamp não estão configurados ou não resolvem. Nunca propaga
// pânico para quem chama.
//
// Valores que não convertem para número viram NaN e seguem adiante;
// cabe ao consumidor descartá-los (ver models.Point.HasValidValue).
func Normalize(msg models.RawMessage, cfg Config) (point *models.Point) {
	defer func() {
		if r := recover(); r != nil {
			point = nil
		}
	}()

	if cfg.ValuePath == "" || cfg.TimestampPath == "" {
		return nil
	}

	rawValue, ok := Resolve(msg.Payload, cfg.ValuePath)
	if !ok {
		return nil
	}
	rawTimestamp, ok := Resolve(msg.Payload, cfg.TimestampPath)
	if !ok {
		return nil
	}

	return &models.Point{
		ID:         msg.ID,
		Value:      ToNumber(rawValue),
		X:          optionalNumber(msg.Payload, cfg.XPath),
		Y:          optionalNumber(msg.Payload, cfg.YPath),
		Z:          optionalNumber(msg.Payload, cfg.ZPath),
		SensorID:   optionalString(msg.Payload, cfg.SensorIDPath),
		SensorType: optionalString(msg.Payload, cfg.SensorTypePath),
		Unit:       optionalString(msg.Payload, cfg.UnitPath),
		Timestamp:  models.NewTimestamp(rawTimestamp),
	}
}

// NormalizeAll normaliza cada mensagem e descarta as que falham
func NormalizeAll(msgs []models.RawMessage, cfg Config) []models.Point {
	points := make([]models.Point, 0, len(msgs))
	for _, msg := range msgs {
		if p := Normalize(msg, cfg); p != nil {
			points = append(points, *p)
		}
	}
	return points
}

func optionalNumber(root payload.Value, path string) *float64 {
	if path == "" {
		return nil
	}
	v, ok := Resolve(root, path)
	if !ok {
		return nil
	}
	n := ToNumber(v)
	return &n
}

func optionalString(root payload.Value, path string) *string {
	if path == "" {
		return nil
	}
	v, ok := Resolve(root, path)
	if !ok {
		return nil
	}
	s := ToString(v)
	return &s
}

var decimalLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// ToNumber converte como a coerção numérica de linguagens dinâmicas:
// strings decimais, hexadecimais (0x), binárias (0b), octais (0o) e
// Infinity; string vazia vira 0. Booleanos, null, objetos e arrays
// viram NaN.
func ToNumber(v payload.Value) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		return stringToNumber(t)
	}
	return math.NaN()
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'b', 'B':
			base = 2
		case 'o', 'O':
			base = 8
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
	}

	if !decimalLiteral.MatchString(s) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// fora do intervalo: ParseFloat já devolve ±Inf
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

// ToString converte o valor resolvido para texto
func ToString(v payload.Value) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return formatNumber(t)
	}
	b, err := payload.Encode(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	if abs := math.Abs(f); abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
