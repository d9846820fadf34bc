package mapping

import (
	"regexp"
	"strings"

	"geo-insight/internal/payload"
)

// Padrões por campo. A ordem das entradas e dos caminhos define o
// desempate: o primeiro caminho que casa vence.
var detectPatterns = []struct {
	field   Field
	pattern *regexp.Regexp
}{
	{FieldValue, regexp.MustCompile(`(?i)value|temp|temperature|humidity|pressure|reading|measurement|level|speed|battery`)},
	{FieldTimestamp, regexp.MustCompile(`(?i)time|date|timestamp|ts|created`)},
	{FieldX, regexp.MustCompile(`(?i)^x$|latitude|lat|coordX`)},
	{FieldY, regexp.MustCompile(`(?i)^y$|longitude|lng|lon|coordY`)},
	{FieldZ, regexp.MustCompile(`(?i)^z$|altitude|alt|elevation|coordZ`)},
	{FieldSensorID, regexp.MustCompile(`(?i)sensor_?id|device_?id|^id$|deviceId|sensorId`)},
	{FieldSensorType, regexp.MustCompile(`(?i)type|sensor_?type|kind|category`)},
	{FieldUnit, regexp.MustCompile(`(?i)unit|units|uom`)},
}

// Flatten lista todos os caminhos alcançáveis descendo apenas em
// objetos. Arrays são folhas.
func Flatten(v payload.Value) []string {
	var paths []string
	flatten(v, "", &paths)
	return paths
}

func flatten(v payload.Value, prefix string, paths *[]string) {
	obj, ok := v.(*payload.Object)
	if !ok || obj == nil {
		return
	}
	for _, key := range obj.Keys() {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		child, _ := obj.Get(key)
		if nested, isObject := child.(*payload.Object); isObject && nested != nil {
			flatten(nested, path, paths)
			continue
		}
		*paths = append(*paths, path)
	}
}

// Detect propõe uma configuração a partir de uma amostra. É apenas
// sugestão: nunca falha e devolve configuração vazia se nada casar.
func Detect(sample payload.Value) Config {
	paths := Flatten(sample)

	var cfg Config
	for _, dp := range detectPatterns {
		for _, path := range paths {
			if matchesPath(dp.pattern, path) {
				cfg, _ = cfg.WithPath(dp.field, path)
				break
			}
		}
	}
	return cfg
}

func matchesPath(re *regexp.Regexp, path string) bool {
	if re.MatchString(path) {
		return true
	}
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return re.MatchString(path[i+1:])
	}
	return false
}
