package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS category_cache (
	cache_key  TEXT PRIMARY KEY,
	category   TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	written_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_category_cache_written_at ON category_cache (written_at);
`

// PostgresStore persists entries in PostgreSQL, for deployments that run
// several importer instances against one cache.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgresStore connects to dsn and ensures the cache table exists.
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("OpenPostgresStore: parse dsn: %w", err)
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "finance-importer"

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("OpenPostgresStore: connect: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("OpenPostgresStore: create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Entry, error) {
	var e Entry
	err := s.pool.QueryRow(ctx,
		`SELECT cache_key, category, confidence, written_at FROM category_cache WHERE cache_key = $1`, key,
	).Scan(&e.Key, &e.Category, &e.Confidence, &e.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("PostgresStore.Get: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) Put(ctx context.Context, e Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO category_cache (cache_key, category, confidence, written_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cache_key) DO UPDATE SET
			category = EXCLUDED.category,
			confidence = EXCLUDED.confidence,
			written_at = EXCLUDED.written_at`,
		e.Key, e.Category, e.Confidence, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("PostgresStore.Put: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM category_cache WHERE cache_key = $1`, key); err != nil {
		return fmt.Errorf("PostgresStore.Delete: %w", err)
	}
	return nil
}

func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM category_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("PostgresStore.Len: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Oldest(ctx context.Context, n int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cache_key FROM category_cache ORDER BY written_at, cache_key LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("PostgresStore.Oldest: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("PostgresStore.Oldest: collect: %w", err)
	}
	return keys, nil
}

func (s *PostgresStore) DeleteBefore(ctx context.Context, t time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM category_cache WHERE written_at < $1`, t)
	if err != nil {
		return 0, fmt.Errorf("PostgresStore.DeleteBefore: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

var _ Store = (*PostgresStore)(nil)
