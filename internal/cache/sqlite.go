package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS category_cache (
	cache_key  TEXT PRIMARY KEY,
	category   TEXT NOT NULL,
	confidence REAL NOT NULL,
	written_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_category_cache_written_at ON category_cache (written_at);
`

// SQLiteStore persists entries in a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the cache database at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("OpenSQLiteStore: open %q: %w", path, err)
	}
	// A single connection serializes writers; SQLite allows one at a time anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("OpenSQLiteStore: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, error) {
	var (
		e  Entry
		ms int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT cache_key, category, confidence, written_at FROM category_cache WHERE cache_key = ?`, key,
	).Scan(&e.Key, &e.Category, &e.Confidence, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("SQLiteStore.Get: %w", err)
	}
	e.Timestamp = time.UnixMilli(ms)
	return e, nil
}

func (s *SQLiteStore) Put(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO category_cache (cache_key, category, confidence, written_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			category = excluded.category,
			confidence = excluded.confidence,
			written_at = excluded.written_at`,
		e.Key, e.Category, e.Confidence, e.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("SQLiteStore.Put: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM category_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("SQLiteStore.Delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM category_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("SQLiteStore.Len: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Oldest(ctx context.Context, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cache_key FROM category_cache ORDER BY written_at, cache_key LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("SQLiteStore.Oldest: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("SQLiteStore.Oldest: scan: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) DeleteBefore(ctx context.Context, t time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM category_cache WHERE written_at < ?`, t.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("SQLiteStore.DeleteBefore: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("SQLiteStore.DeleteBefore: rows affected: %w", err)
	}
	return int(n), nil
}

var _ Store = (*SQLiteStore)(nil)
