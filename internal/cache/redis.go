package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis"
)

const defaultRedisPrefix = "category_cache"

// RedisStore keeps each entry in a hash and indexes keys by write time in a
// sorted set, so expiry and eviction never scan the keyspace.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// OpenRedisStore connects to the server named by a redis:// URL.
func OpenRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("OpenRedisStore: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.WithContext(ctx).Ping().Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("OpenRedisStore: ping: %w", err)
	}
	return &RedisStore{client: client, prefix: defaultRedisPrefix}, nil
}

// Close closes the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) entryKey(key string) string {
	return s.prefix + ":entry:" + key
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":index"
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, error) {
	fields, err := s.client.WithContext(ctx).HGetAll(s.entryKey(key)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("RedisStore.Get: %w", err)
	}
	if len(fields) == 0 {
		return Entry{}, ErrNotFound
	}
	return decodeRedisEntry(key, fields)
}

func (s *RedisStore) Put(ctx context.Context, e Entry) error {
	ms := e.Timestamp.UnixMilli()
	_, err := s.client.WithContext(ctx).TxPipelined(func(pipe redis.Pipeliner) error {
		pipe.HMSet(s.entryKey(e.Key), map[string]interface{}{
			"category":   e.Category,
			"confidence": strconv.FormatFloat(e.Confidence, 'f', -1, 64),
			"written_at": strconv.FormatInt(ms, 10),
		})
		pipe.ZAdd(s.indexKey(), redis.Z{Score: float64(ms), Member: e.Key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("RedisStore.Put: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.deleteKeys(ctx, []string{key}); err != nil {
		return fmt.Errorf("RedisStore.Delete: %w", err)
	}
	return nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.WithContext(ctx).ZCard(s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("RedisStore.Len: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Oldest(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	keys, err := s.client.WithContext(ctx).ZRange(s.indexKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("RedisStore.Oldest: %w", err)
	}
	return keys, nil
}

func (s *RedisStore) DeleteBefore(ctx context.Context, t time.Time) (int, error) {
	keys, err := s.client.WithContext(ctx).ZRangeByScore(s.indexKey(), redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(t.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("RedisStore.DeleteBefore: %w", err)
	}
	if err := s.deleteKeys(ctx, keys); err != nil {
		return 0, fmt.Errorf("RedisStore.DeleteBefore: %w", err)
	}
	return len(keys), nil
}

func (s *RedisStore) deleteKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.client.WithContext(ctx).TxPipelined(func(pipe redis.Pipeliner) error {
		members := make([]interface{}, 0, len(keys))
		for _, k := range keys {
			pipe.Del(s.entryKey(k))
			members = append(members, k)
		}
		pipe.ZRem(s.indexKey(), members...)
		return nil
	})
	return err
}

func decodeRedisEntry(key string, fields map[string]string) (Entry, error) {
	confidence, err := strconv.ParseFloat(fields["confidence"], 64)
	if err != nil {
		return Entry{}, fmt.Errorf("decode entry %q: confidence: %w", key, err)
	}
	ms, err := strconv.ParseInt(fields["written_at"], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("decode entry %q: written_at: %w", key, err)
	}
	return Entry{
		Key:        key,
		Category:   fields["category"],
		Confidence: confidence,
		Timestamp:  time.UnixMilli(ms),
	}, nil
}

var _ Store = (*RedisStore)(nil)
