package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/annel0/tile-movement/internal/world"
)

const mariaUpsert = `
	INSERT INTO character_positions (name, map_id, x, y)
	VALUES (?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		map_id = VALUES(map_id),
		x = VALUES(x),
		y = VALUES(y),
		updated_at = CURRENT_TIMESTAMP
`

// MariaPositionRepo реализует PositionRepo для MariaDB/MySQL
// (таблица character_positions).
type MariaPositionRepo struct {
	db *sql.DB
}

// NewMariaPositionRepo подключается и создаёт таблицу при необходимости.
// dsn: user:pass@tcp(host:port)/dbname
func NewMariaPositionRepo(ctx context.Context, dsn string) (*MariaPositionRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaPositionRepo{db: db}
	if err := repo.createTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *MariaPositionRepo) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS character_positions (
			name       VARCHAR(64)       PRIMARY KEY,
			map_id     SMALLINT UNSIGNED NOT NULL,
			x          SMALLINT UNSIGNED NOT NULL,
			y          SMALLINT UNSIGNED NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы character_positions: %w", err)
	}
	return nil
}

func (r *MariaPositionRepo) Save(ctx context.Context, name string, pos world.Position) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, mariaUpsert, name, pos.Map, pos.X, pos.Y); err != nil {
		return fmt.Errorf("ошибка сохранения позиции %q: %w", name, err)
	}
	return nil
}

func (r *MariaPositionRepo) Load(ctx context.Context, name string) (world.Position, bool, error) {
	if err := ValidateName(name); err != nil {
		return world.Position{}, false, err
	}
	var pos world.Position
	err := r.db.QueryRowContext(ctx, `SELECT map_id, x, y FROM character_positions WHERE name = ?`, name).
		Scan(&pos.Map, &pos.X, &pos.Y)
	if err == sql.ErrNoRows {
		return world.Position{}, false, nil
	}
	if err != nil {
		return world.Position{}, false, fmt.Errorf("ошибка загрузки позиции %q: %w", name, err)
	}
	return pos, true, nil
}

func (r *MariaPositionRepo) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM character_positions WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("ошибка удаления позиции %q: %w", name, err)
	}
	return checkAffected(res, name)
}

// BatchSave сохраняет позиции в одной транзакции
func (r *MariaPositionRepo) BatchSave(ctx context.Context, positions map[string]world.Position) error {
	return batchUpsert(ctx, r.db, mariaUpsert, positions)
}

func (r *MariaPositionRepo) Close() error {
	return r.db.Close()
}

// batchUpsert общий транзакционный путь для SQL-бэкендов
func batchUpsert(ctx context.Context, db *sql.DB, query string, positions map[string]world.Position) error {
	if len(positions) == 0 {
		return nil
	}
	for name := range positions {
		if err := ValidateName(name); err != nil {
			return err
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	for name, pos := range positions {
		if _, err := stmt.ExecContext(ctx, name, pos.Map, pos.X, pos.Y); err != nil {
			return fmt.Errorf("ошибка сохранения позиции %q в batch: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

func checkAffected(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения количества затронутых строк: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("position of %q: %w", name, ErrNotFound)
	}
	return nil
}
