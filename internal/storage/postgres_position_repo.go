package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/annel0/tile-movement/internal/world"
)

const postgresUpsert = `
	INSERT INTO character_positions (name, map_id, x, y, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (name) DO UPDATE SET
		map_id = EXCLUDED.map_id,
		x = EXCLUDED.x,
		y = EXCLUDED.y,
		updated_at = NOW()
`

// PostgresPositionRepo реализует PositionRepo для PostgreSQL
type PostgresPositionRepo struct {
	db *sql.DB
}

// NewPostgresPositionRepo подключается и инициализирует схему
func NewPostgresPositionRepo(ctx context.Context, dsn string) (*PostgresPositionRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS character_positions (
		name TEXT PRIMARY KEY,
		map_id INTEGER NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &PostgresPositionRepo{db: db}, nil
}

func (r *PostgresPositionRepo) Save(ctx context.Context, name string, pos world.Position) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, postgresUpsert, name, pos.Map, pos.X, pos.Y); err != nil {
		return fmt.Errorf("failed to save position of %q: %w", name, err)
	}
	return nil
}

func (r *PostgresPositionRepo) Load(ctx context.Context, name string) (world.Position, bool, error) {
	if err := ValidateName(name); err != nil {
		return world.Position{}, false, err
	}
	var pos world.Position
	err := r.db.QueryRowContext(ctx, `SELECT map_id, x, y FROM character_positions WHERE name = $1`, name).
		Scan(&pos.Map, &pos.X, &pos.Y)
	if err == sql.ErrNoRows {
		return world.Position{}, false, nil
	}
	if err != nil {
		return world.Position{}, false, fmt.Errorf("failed to load position of %q: %w", name, err)
	}
	return pos, true, nil
}

func (r *PostgresPositionRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM character_positions WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete position of %q: %w", name, err)
	}
	return checkAffected(res, name)
}

func (r *PostgresPositionRepo) BatchSave(ctx context.Context, positions map[string]world.Position) error {
	return batchUpsert(ctx, r.db, postgresUpsert, positions)
}

func (r *PostgresPositionRepo) Close() error {
	return r.db.Close()
}
