package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/annel0/tile-movement/internal/logging"
	"github.com/annel0/tile-movement/internal/world"
)

// TieredStats счётчики горячего уровня
type TieredStats struct {
	Hits      int64
	Misses    int64
	HotErrors int64
}

// TieredPositionRepo держит горячий уровень (обычно Redis) перед постоянным
// хранилищем. Чтение идёт через горячий уровень (read-through), запись в оба.
// Источник истины cold, ошибки hot только логируются.
type TieredPositionRepo struct {
	hot  PositionRepo
	cold PositionRepo

	hits      atomic.Int64
	misses    atomic.Int64
	hotErrors atomic.Int64

	logger *logging.Logger
}

// NewTieredPositionRepo объединяет два репозитория
func NewTieredPositionRepo(hot, cold PositionRepo) *TieredPositionRepo {
	return &TieredPositionRepo{hot: hot, cold: cold, logger: logging.GetStorageLogger()}
}

func (t *TieredPositionRepo) hotFailed(op, name string, err error) {
	t.hotErrors.Add(1)
	t.logger.Warn("hot tier %s %q: %v", op, name, err)
}

// Save пишет в cold, затем обновляет hot
func (t *TieredPositionRepo) Save(ctx context.Context, name string, pos world.Position) error {
	if err := t.cold.Save(ctx, name, pos); err != nil {
		return err
	}
	if err := t.hot.Save(ctx, name, pos); err != nil {
		t.hotFailed("save", name, err)
	}
	return nil
}

// Load читает из hot; при промахе загружает из cold и прогревает hot
func (t *TieredPositionRepo) Load(ctx context.Context, name string) (world.Position, bool, error) {
	pos, found, err := t.hot.Load(ctx, name)
	switch {
	case err != nil:
		t.hotFailed("load", name, err)
	case found:
		t.hits.Add(1)
		return pos, true, nil
	}
	t.misses.Add(1)

	pos, found, err = t.cold.Load(ctx, name)
	if err != nil || !found {
		return pos, found, err
	}
	if err := t.hot.Save(ctx, name, pos); err != nil {
		t.hotFailed("warm", name, err)
	}
	return pos, true, nil
}

// Delete удаляет запись из обоих уровней; ErrNotFound определяется cold
func (t *TieredPositionRepo) Delete(ctx context.Context, name string) error {
	if err := t.hot.Delete(ctx, name); err != nil && !errors.Is(err, ErrNotFound) {
		t.hotFailed("delete", name, err)
	}
	return t.cold.Delete(ctx, name)
}

// BatchSave сохраняет пачку в cold, затем в hot
func (t *TieredPositionRepo) BatchSave(ctx context.Context, positions map[string]world.Position) error {
	if err := t.cold.BatchSave(ctx, positions); err != nil {
		return err
	}
	if err := t.hot.BatchSave(ctx, positions); err != nil {
		t.hotFailed("batch", fmt.Sprintf("%d records", len(positions)), err)
	}
	return nil
}

// Stats возвращает счётчики попаданий
func (t *TieredPositionRepo) Stats() TieredStats {
	return TieredStats{Hits: t.hits.Load(), Misses: t.misses.Load(), HotErrors: t.hotErrors.Load()}
}

// Close закрывает оба уровня
func (t *TieredPositionRepo) Close() error {
	return errors.Join(t.hot.Close(), t.cold.Close())
}
