package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/tile-movement/internal/world"
)

// RedisConfig настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записи (0: бессрочно)
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "tile:pos:",
	}
}

// RedisPositionRepo хранит позицию персонажа хешем {map, x, y}
type RedisPositionRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisPositionRepo подключается к Redis и проверяет соединение
func NewRedisPositionRepo(ctx context.Context, cfg RedisConfig) (*RedisPositionRepo, error) {
	def := DefaultRedisConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisPositionRepo{client: client, keyPrefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

func (r *RedisPositionRepo) key(name string) string {
	return r.keyPrefix + name
}

func (r *RedisPositionRepo) write(ctx context.Context, pipe redis.Pipeliner, name string, pos world.Position) {
	key := r.key(name)
	pipe.HSet(ctx, key, "map", pos.Map, "x", pos.X, "y", pos.Y)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
}

func (r *RedisPositionRepo) Save(ctx context.Context, name string, pos world.Position) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		r.write(ctx, pipe, name, pos)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save position of %q: %w", name, err)
	}
	return nil
}

func (r *RedisPositionRepo) Load(ctx context.Context, name string) (world.Position, bool, error) {
	if err := ValidateName(name); err != nil {
		return world.Position{}, false, err
	}
	fields, err := r.client.HGetAll(ctx, r.key(name)).Result()
	if err != nil {
		return world.Position{}, false, fmt.Errorf("failed to get position of %q: %w", name, err)
	}
	if len(fields) == 0 {
		return world.Position{}, false, nil
	}
	pos, err := parsePositionFields(fields)
	if err != nil {
		return world.Position{}, false, fmt.Errorf("position of %q: %w", name, err)
	}
	return pos, true, nil
}

func parsePositionFields(fields map[string]string) (world.Position, error) {
	var out [3]uint16
	for i, f := range []string{"map", "x", "y"} {
		v, err := strconv.ParseUint(fields[f], 10, 16)
		if err != nil {
			return world.Position{}, fmt.Errorf("field %s: %w", f, err)
		}
		out[i] = uint16(v)
	}
	return world.Position{Map: out[0], X: out[1], Y: out[2]}, nil
}

func (r *RedisPositionRepo) Delete(ctx context.Context, name string) error {
	n, err := r.client.Del(ctx, r.key(name)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete position of %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("position of %q: %w", name, ErrNotFound)
	}
	return nil
}

// BatchSave пишет все позиции одной MULTI/EXEC транзакцией
func (r *RedisPositionRepo) BatchSave(ctx context.Context, positions map[string]world.Position) error {
	if len(positions) == 0 {
		return nil
	}
	for name := range positions {
		if err := ValidateName(name); err != nil {
			return err
		}
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for name, pos := range positions {
			r.write(ctx, pipe, name, pos)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save %d positions: %w", len(positions), err)
	}
	return nil
}

func (r *RedisPositionRepo) Close() error {
	return r.client.Close()
}
