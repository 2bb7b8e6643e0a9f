package cache

import (
	"context"
	"fmt"
	"io"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Open builds the store selected by driver. The returned closer is a no-op
// for the memory store.
func Open(ctx context.Context, driver, dsn string) (Store, io.Closer, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nopCloser{}, nil
	case DriverSQLite:
		if dsn == "" {
			dsn = "category_cache.db"
		}
		s, err := OpenSQLiteStore(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case DriverPostgres:
		s, err := OpenPostgresStore(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case DriverRedis:
		if dsn == "" {
			dsn = "redis://localhost:6379/0"
		}
		s, err := OpenRedisStore(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("cache.Open: unknown driver %q", driver)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
