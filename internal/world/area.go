package world

import (
	"sort"
	"sync"
)

// EntityID идентификатор сущности в мире (u32 на проводе)
type EntityID uint32

// AreaIndex пространственный индекс "кто находится в одной области".
// Сущности раскладываются по квадратным ячейкам размером radius; запрос
// просматривает 3x3 соседние ячейки и фильтрует по расстоянию Чебышёва.
type AreaIndex struct {
	radius int

	mu        sync.RWMutex
	cells     map[cellKey]map[EntityID]struct{}
	positions map[EntityID]Position
}

// cellKey ключ ячейки сетки в пределах одной карты
type cellKey struct {
	mapID  uint16
	cx, cy int
}

// NewAreaIndex создаёт индекс с указанным радиусом области
func NewAreaIndex(radius int) *AreaIndex {
	if radius <= 0 {
		radius = 12
	}
	return &AreaIndex{
		radius:    radius,
		cells:     make(map[cellKey]map[EntityID]struct{}),
		positions: make(map[EntityID]Position),
	}
}

// Radius возвращает радиус области
func (ai *AreaIndex) Radius() int {
	return ai.radius
}

func (ai *AreaIndex) keyFor(p Position) cellKey {
	return cellKey{mapID: p.Map, cx: int(p.X) / ai.radius, cy: int(p.Y) / ai.radius}
}

// Upsert добавляет сущность или обновляет её позицию
func (ai *AreaIndex) Upsert(id EntityID, pos Position) {
	ai.mu.Lock()
	defer ai.mu.Unlock()

	if old, ok := ai.positions[id]; ok {
		oldKey := ai.keyFor(old)
		if oldKey == ai.keyFor(pos) {
			ai.positions[id] = pos
			return
		}
		ai.removeFromCell(oldKey, id)
	}

	key := ai.keyFor(pos)
	cell, ok := ai.cells[key]
	if !ok {
		cell = make(map[EntityID]struct{})
		ai.cells[key] = cell
	}
	cell[id] = struct{}{}
	ai.positions[id] = pos
}

// Remove удаляет сущность из индекса
func (ai *AreaIndex) Remove(id EntityID) {
	ai.mu.Lock()
	defer ai.mu.Unlock()

	pos, ok := ai.positions[id]
	if !ok {
		return
	}
	ai.removeFromCell(ai.keyFor(pos), id)
	delete(ai.positions, id)
}

func (ai *AreaIndex) removeFromCell(key cellKey, id EntityID) {
	cell, ok := ai.cells[key]
	if !ok {
		return
	}
	delete(cell, id)
	if len(cell) == 0 {
		delete(ai.cells, key)
	}
}

// Position возвращает позицию сущности, известную индексу
func (ai *AreaIndex) Position(id EntityID) (Position, bool) {
	ai.mu.RLock()
	defer ai.mu.RUnlock()
	p, ok := ai.positions[id]
	return p, ok
}

// Len возвращает число проиндексированных сущностей
func (ai *AreaIndex) Len() int {
	ai.mu.RLock()
	defer ai.mu.RUnlock()
	return len(ai.positions)
}

// Nearby возвращает сущности в области вокруг center, исключая exclude.
// Результат отсортирован по ID для детерминированной рассылки.
func (ai *AreaIndex) Nearby(center Position, exclude EntityID) []EntityID {
	ai.mu.RLock()
	defer ai.mu.RUnlock()

	base := ai.keyFor(center)
	var out []EntityID
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			key := cellKey{mapID: center.Map, cx: base.cx + dx, cy: base.cy + dy}
			for id := range ai.cells[key] {
				if id == exclude {
					continue
				}
				if d := center.Chebyshev(ai.positions[id]); d >= 0 && d <= ai.radius {
					out = append(out, id)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// InArea проверяет, что две позиции находятся в одной области
func (ai *AreaIndex) InArea(a, b Position) bool {
	d := a.Chebyshev(b)
	return d >= 0 && d <= ai.radius
}
