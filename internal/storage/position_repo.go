// Package storage сохраняет позиции персонажей между сессиями и хранит тайловые карты
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/annel0/tile-movement/internal/world"
)

// MaxNameLength максимальная длина имени персонажа в символах
const MaxNameLength = 32

var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidName недопустимое имя персонажа
	ErrInvalidName = errors.New("storage: invalid character name")
)

// PositionRepo сохраняет последнюю авторитетную позицию персонажа.
// Ключ это имя персонажа, EntityID живёт только одну сессию.
type PositionRepo interface {
	// Save сохраняет позицию
	Save(ctx context.Context, name string, pos world.Position) error
	// Load загружает позицию; found=false при первом входе
	Load(ctx context.Context, name string) (pos world.Position, found bool, err error)
	// Delete удаляет запись (ErrNotFound, если её не было)
	Delete(ctx context.Context, name string) error
	// BatchSave сохраняет позиции всех онлайн-персонажей (автосохранение)
	BatchSave(ctx context.Context, positions map[string]world.Position) error
	Close() error
}

// ValidateName проверяет имя персонажа
func ValidateName(name string) error {
	if name == "" || strings.TrimSpace(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !utf8.ValidString(name) || utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: control character", ErrInvalidName)
		}
	}
	return nil
}

// cacheTTL время жизни записи горячего уровня
const cacheTTL = 30 * time.Minute

// Options параметры подключения к хранилищам позиций
type Options struct {
	Backend       string // memory | redis | maria | postgres | mongo
	RedisAddr     string
	MariaDSN      string
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string
	CacheAddr     string // Redis перед постоянным бэкендом (пусто: без кеша)
}

// OpenPositionRepo создаёт репозиторий выбранного бэкенда; с CacheAddr
// постоянный бэкенд оборачивается в TieredPositionRepo с Redis
func OpenPositionRepo(ctx context.Context, opts Options) (PositionRepo, error) {
	repo, err := openBackend(ctx, opts)
	if err != nil || opts.CacheAddr == "" {
		return repo, err
	}
	switch opts.Backend {
	case "", "memory", "redis":
		return repo, nil
	}
	hot, err := NewRedisPositionRepo(ctx, RedisConfig{Addr: opts.CacheAddr, KeyPrefix: "tile:poscache:", TTL: cacheTTL})
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("position cache: %w", err)
	}
	return NewTieredPositionRepo(hot, repo), nil
}

func openBackend(ctx context.Context, opts Options) (PositionRepo, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryPositionRepo(), nil
	case "redis":
		return NewRedisPositionRepo(ctx, RedisConfig{Addr: opts.RedisAddr})
	case "maria", "mysql":
		return NewMariaPositionRepo(ctx, opts.MariaDSN)
	case "postgres":
		return NewPostgresPositionRepo(ctx, opts.PostgresDSN)
	case "mongo":
		return NewMongoPositionRepo(ctx, MongoConfig{URI: opts.MongoURI, Database: opts.MongoDatabase})
	}
	return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
}
