package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/annel0/tile-movement/internal/world"
)

// MemoryPositionRepo реализует PositionRepo в памяти.
// Для тестов и локальной разработки: данные теряются при перезапуске.
type MemoryPositionRepo struct {
	mu   sync.RWMutex
	data map[string]world.Position
}

// NewMemoryPositionRepo создаёт пустой репозиторий
func NewMemoryPositionRepo() *MemoryPositionRepo {
	return &MemoryPositionRepo{data: make(map[string]world.Position)}
}

func (r *MemoryPositionRepo) Save(ctx context.Context, name string, pos world.Position) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.data[name] = pos
	r.mu.Unlock()
	return nil
}

func (r *MemoryPositionRepo) Load(ctx context.Context, name string) (world.Position, bool, error) {
	if err := ValidateName(name); err != nil {
		return world.Position{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return world.Position{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.data[name]
	return pos, ok, nil
}

func (r *MemoryPositionRepo) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[name]; !ok {
		return fmt.Errorf("position of %q: %w", name, ErrNotFound)
	}
	delete(r.data, name)
	return nil
}

// BatchSave атомарно сохраняет все позиции: при невалидном имени не сохраняется ничего
func (r *MemoryPositionRepo) BatchSave(ctx context.Context, positions map[string]world.Position) error {
	for name := range positions {
		if err := ValidateName(name); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, pos := range positions {
		r.data[name] = pos
	}
	return nil
}

// Count возвращает число сохранённых позиций
func (r *MemoryPositionRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

func (r *MemoryPositionRepo) Close() error { return nil }
