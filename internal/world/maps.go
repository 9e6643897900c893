package world

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// MapProvider отвечает на вопрос "можно ли встать на тайл".
// Клиент и сервер обязаны использовать одну и ту же реализацию NextPosition поверх него.
type MapProvider interface {
	TileBlocked(mapID uint16, x, y uint16) bool
	Bounds(mapID uint16) (width, height uint16, ok bool)
}

// NextPosition возвращает соседний тайл в направлении dir.
// Если тайл заблокирован, вне карты или карта неизвестна: возвращает current.
func NextPosition(maps MapProvider, current Position, dir Direction) Position {
	width, height, ok := maps.Bounds(current.Map)
	if !ok || !dir.Valid() {
		return current
	}

	dx, dy := dir.Offset()
	nx := int(current.X) + dx
	ny := int(current.Y) + dy
	if nx < 0 || ny < 0 || nx >= int(width) || ny >= int(height) {
		return current
	}
	if maps.TileBlocked(current.Map, uint16(nx), uint16(ny)) {
		return current
	}

	return Position{Map: current.Map, X: uint16(nx), Y: uint16(ny)}
}

// MapSet потокобезопасный набор карт, реализует MapProvider
type MapSet struct {
	mu   sync.RWMutex
	maps map[uint16]*TileMap
}

// NewMapSet создаёт набор из переданных карт
func NewMapSet(maps ...*TileMap) *MapSet {
	ms := &MapSet{maps: make(map[uint16]*TileMap, len(maps))}
	for _, m := range maps {
		ms.maps[m.ID] = m
	}
	return ms
}

// Put добавляет или заменяет карту
func (ms *MapSet) Put(m *TileMap) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.maps[m.ID] = m
}

// Get возвращает карту по идентификатору
func (ms *MapSet) Get(id uint16) (*TileMap, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	m, ok := ms.maps[id]
	return m, ok
}

// IDs возвращает отсортированные идентификаторы загруженных карт
func (ms *MapSet) IDs() []uint16 {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	ids := make([]uint16, 0, len(ms.maps))
	for id := range ms.maps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// TileBlocked реализует MapProvider. Неизвестная карта считается заблокированной.
func (ms *MapSet) TileBlocked(mapID uint16, x, y uint16) bool {
	m, ok := ms.Get(mapID)
	if !ok {
		return true
	}
	return m.Blocked(int(x), int(y))
}

// Bounds реализует MapProvider
func (ms *MapSet) Bounds(mapID uint16) (uint16, uint16, bool) {
	m, ok := ms.Get(mapID)
	if !ok {
		return 0, 0, false
	}
	return m.Width, m.Height, true
}

// LoadMapDir загружает все *.yaml/*.yml карты из каталога
func LoadMapDir(dir string) (*MapSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("чтение каталога карт %s: %w", dir, err)
	}

	ms := NewMapSet()
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		m, err := LoadTileMapFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if _, dup := ms.Get(m.ID); dup {
			return nil, fmt.Errorf("карта %d объявлена повторно в %s", m.ID, name)
		}
		ms.Put(m)
	}
	return ms, nil
}
