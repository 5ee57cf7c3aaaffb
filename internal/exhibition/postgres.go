package exhibition

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the exhibition catalog in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS exhibitions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			tags TEXT[] NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_exhibitions_name ON exhibitions (name);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Exhibition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, location, tags, updated_at
		 FROM exhibitions ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("query exhibitions: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Exhibition, error) {
		var e Exhibition
		err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Location, &e.Tags, &e.UpdatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan exhibitions: %w", err)
	}
	return items, nil
}

// ReplaceAll swaps the whole catalog in one transaction.
func (s *PostgresStore) ReplaceAll(ctx context.Context, items []Exhibition) error {
	items = normalize(items)
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM exhibitions`); err != nil {
			return fmt.Errorf("clear exhibitions: %w", err)
		}
		batch := &pgx.Batch{}
		for _, e := range items {
			tags := e.Tags
			if tags == nil {
				tags = []string{}
			}
			batch.Queue(
				`INSERT INTO exhibitions (id, name, description, location, tags, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				e.ID, e.Name, e.Description, e.Location, tags, e.UpdatedAt,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert exhibitions: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
