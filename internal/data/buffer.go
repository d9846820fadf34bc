package data

import (
	"sync"

	"geo-insight/internal/models"
)

const (
	DefaultPointLimit = 1000
	MaxPointLimit     = 10000
)

// PointBuffer buffer limitado de pontos normalizados, mais recente primeiro
type PointBuffer struct {
	points  []models.Point
	ids     map[string]struct{}
	limit   int
	filters models.Filters
	mutex   sync.RWMutex
}

// NewPointBuffer cria novo buffer com o limite informado
func NewPointBuffer(limit int) *PointBuffer {
	limit = ClampLimit(limit)
	return &PointBuffer{
		points: make([]models.Point, 0, limit),
		ids:    make(map[string]struct{}, limit),
		limit:  limit,
	}
}

// ClampLimit aplica o padrão e o teto rígido
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPointLimit
	}
	if limit > MaxPointLimit {
		return MaxPointLimit
	}
	return limit
}

// Insert adiciona um ponto no topo. Retorna false quando o ponto é
// descartado por filtro, ID repetido ou valor não numérico.
func (b *PointBuffer) Insert(p models.Point) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !p.HasValidValue() || !b.filters.Matches(&p) {
		return false
	}
	if p.ID != "" {
		if _, dup := b.ids[p.ID]; dup {
			return false
		}
		b.ids[p.ID] = struct{}{}
	}

	b.points = append(b.points, models.Point{})
	copy(b.points[1:], b.points)
	b.points[0] = p
	b.evict()
	return true
}

// Replace substitui todo o conteúdo por um snapshot (mais recente primeiro)
func (b *PointBuffer) Replace(points []models.Point) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.points = b.points[:0]
	b.ids = make(map[string]struct{}, b.limit)
	for _, p := range points {
		if len(b.points) >= b.limit {
			break
		}
		if !p.HasValidValue() || !b.filters.Matches(&p) {
			continue
		}
		if p.ID != "" {
			if _, dup := b.ids[p.ID]; dup {
				continue
			}
			b.ids[p.ID] = struct{}{}
		}
		b.points = append(b.points, p)
	}
	return len(b.points)
}

// evict remove da cauda (mais antigos) até caber no limite
func (b *PointBuffer) evict() {
	for len(b.points) > b.limit {
		last := b.points[len(b.points)-1]
		delete(b.ids, last.ID)
		b.points = b.points[:len(b.points)-1]
	}
}

// Points retorna cópia dos pontos, mais recente primeiro
func (b *PointBuffer) Points() []models.Point {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	// Retorna cópia para evitar race conditions
	points := make([]models.Point, len(b.points))
	copy(points, b.points)
	return points
}

// Contains indica se já existe ponto com o ID
func (b *PointBuffer) Contains(id string) bool {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	_, ok := b.ids[id]
	return ok
}

// Size retorna tamanho atual do buffer
func (b *PointBuffer) Size() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return len(b.points)
}

// Limit retorna o limite atual
func (b *PointBuffer) Limit() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return b.limit
}

// SetLimit altera o limite e descarta o excedente mais antigo
func (b *PointBuffer) SetLimit(limit int) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.limit = ClampLimit(limit)
	b.evict()
	return b.limit
}

// Filters retorna os filtros ativos
func (b *PointBuffer) Filters() models.Filters {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	return b.filters
}

// SetFilters troca os filtros. Pontos já armazenados que não casam
// são removidos.
func (b *PointBuffer) SetFilters(f models.Filters) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.filters = f
	kept := b.points[:0]
	for _, p := range b.points {
		if f.Matches(&p) {
			kept = append(kept, p)
			continue
		}
		delete(b.ids, p.ID)
	}
	b.points = kept
}

// Clear limpa todo o buffer
func (b *PointBuffer) Clear() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.points = b.points[:0]
	b.ids = make(map[string]struct{}, b.limit)
}

// Stats calcula os agregados sobre o conteúdo atual
func (b *PointBuffer) Stats() models.BufferStats {
	return ComputeStats(b.Points())
}
