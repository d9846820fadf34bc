package mapping

import (
	"strings"

	"geo-insight/internal/payload"
)

// Resolve percorre root seguindo um caminho separado por pontos.
// Retorna false quando o caminho não existe; nunca entra em pânico.
// Índices de array (readings[0].value) não são suportados.
func Resolve(root payload.Value, path string) (payload.Value, bool) {
	if path == "" {
		return nil, false
	}
	current, ok := root.(*payload.Object)
	if !ok || current == nil {
		return nil, false
	}

	keys := strings.Split(path, ".")
	for i, key := range keys {
		v, exists := current.Get(key)
		if !exists {
			return nil, false
		}
		if i == len(keys)-1 {
			return v, true
		}
		next, isObject := v.(*payload.Object)
		if !isObject || next == nil {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// HasArrayIndex indica se o caminho usa sintaxe de índice, que o
// resolvedor não suporta
func HasArrayIndex(path string) bool {
	return strings.ContainsAny(path, "[]")
}
