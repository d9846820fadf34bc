package mapping

import (
	"fmt"
	"sync/atomic"

	"geo-insight/internal/payload"
)

// Field campo alvo de uma configuração de mapeamento
type Field string

const (
	FieldValue      Field = "value"
	FieldTimestamp  Field = "timestamp"
	FieldX          Field = "x"
	FieldY          Field = "y"
	FieldZ          Field = "z"
	FieldSensorID   Field = "sensorId"
	FieldSensorType Field = "sensorType"
	FieldUnit       Field = "unit"
)

// Fields ordem fixa de avaliação dos campos
var Fields = []Field{
	FieldValue,
	FieldTimestamp,
	FieldX,
	FieldY,
	FieldZ,
	FieldSensorID,
	FieldSensorType,
	FieldUnit,
}

// Config associa cada campo do ponto normalizado a um caminho no payload.
// String vazia significa caminho ausente.
type Config struct {
	ValuePath      string `json:"valuePath,omitempty" yaml:"value_path"`
	TimestampPath  string `json:"timestampPath,omitempty" yaml:"timestamp_path"`
	XPath          string `json:"xPath,omitempty" yaml:"x_path"`
	YPath          string `json:"yPath,omitempty" yaml:"y_path"`
	ZPath          string `json:"zPath,omitempty" yaml:"z_path"`
	SensorIDPath   string `json:"sensorIdPath,omitempty" yaml:"sensor_id_path"`
	SensorTypePath string `json:"sensorTypePath,omitempty" yaml:"sensor_type_path"`
	UnitPath       string `json:"unitPath,omitempty" yaml:"unit_path"`
}

// IdentityConfig mapeamento para pontos que já chegam normalizados
func IdentityConfig() Config {
	return Config{
		ValuePath:      "value",
		TimestampPath:  "timestamp",
		XPath:          "x",
		YPath:          "y",
		ZPath:          "z",
		SensorIDPath:   "sensorId",
		SensorTypePath: "sensorType",
		UnitPath:       "unit",
	}
}

// IsEmpty indica que nenhum caminho foi definido
func (c Config) IsEmpty() bool {
	return c == Config{}
}

// Path retorna o caminho configurado para o campo
func (c Config) Path(f Field) string {
	switch f {
	case FieldValue:
		return c.ValuePath
	case FieldTimestamp:
		return c.TimestampPath
	case FieldX:
		return c.XPath
	case FieldY:
		return c.YPath
	case FieldZ:
		return c.ZPath
	case FieldSensorID:
		return c.SensorIDPath
	case FieldSensorType:
		return c.SensorTypePath
	case FieldUnit:
		return c.UnitPath
	}
	return ""
}

// WithPath devolve uma cópia com o caminho do campo alterado
func (c Config) WithPath(f Field, path string) (Config, error) {
	switch f {
	case FieldValue:
		c.ValuePath = path
	case FieldTimestamp:
		c.TimestampPath = path
	case FieldX:
		c.XPath = path
	case FieldY:
		c.YPath = path
	case FieldZ:
		c.ZPath = path
	case FieldSensorID:
		c.SensorIDPath = path
	case FieldSensorType:
		c.SensorTypePath = path
	case FieldUnit:
		c.UnitPath = path
	default:
		return c, fmt.Errorf("mapping: unknown field %q", f)
	}
	return c, nil
}

// Validate lista todos os erros da configuração contra a amostra
// selecionada. Lista vazia significa configuração salvável.
func (c Config) Validate(sample payload.Value) []string {
	var errs []string

	if c.ValuePath == "" {
		errs = append(errs, "value path is required")
	} else if _, ok := Resolve(sample, c.ValuePath); !ok {
		errs = append(errs, fmt.Sprintf("value path %q does not resolve in the selected sample", c.ValuePath))
	}

	if c.TimestampPath == "" {
		errs = append(errs, "timestamp path is required")
	} else if _, ok := Resolve(sample, c.TimestampPath); !ok {
		errs = append(errs, fmt.Sprintf("timestamp path %q does not resolve in the selected sample", c.TimestampPath))
	}

	return errs
}

// Complete verdadeiro quando os caminhos obrigatórios existem e ambos
// resolvem em pelo menos uma amostra observada
func (c Config) Complete(samples []payload.Value) bool {
	if c.ValuePath == "" || c.TimestampPath == "" {
		return false
	}
	for _, sample := range samples {
		_, valueOK := Resolve(sample, c.ValuePath)
		_, tsOK := Resolve(sample, c.TimestampPath)
		if valueOK && tsOK {
			return true
		}
	}
	return false
}

// Holder guarda a configuração ativa. Escritas trocam o snapshot
// inteiro, então um leitor nunca vê caminhos de edições diferentes.
type Holder struct {
	current atomic.Pointer[Config]
}

// NewHolder cria holder com configuração inicial
func NewHolder(initial Config) *Holder {
	h := &Holder{}
	h.Store(initial)
	return h
}

// Load retorna o snapshot atual
func (h *Holder) Load() Config {
	if c := h.current.Load(); c != nil {
		return *c
	}
	return Config{}
}

// Store substitui a configuração inteira
func (h *Holder) Store(c Config) {
	h.current.Store(&c)
}
