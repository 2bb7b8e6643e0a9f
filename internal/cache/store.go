package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned by stores when a key is absent.
var ErrNotFound = errors.New("cache entry not found")

// Entry is one persisted description → category mapping.
type Entry struct {
	Key        string    `json:"key"`
	Category   string    `json:"category"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store persists cache entries. Put must replace an existing entry atomically
// so concurrent writers to one key end up with one of the written values.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Put(ctx context.Context, e Entry) error
	Delete(ctx context.Context, key string) error
	Len(ctx context.Context) (int, error)
	// Oldest returns the keys of the n entries with the smallest timestamps.
	Oldest(ctx context.Context, n int) ([]string, error)
	// DeleteBefore removes entries written before t and reports how many went.
	DeleteBefore(ctx context.Context, t time.Time) (int, error)
}

// MemoryStore keeps entries in a map. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) Put(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[e.Key] = e
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries), nil
}

func (s *MemoryStore) Oldest(ctx context.Context, n int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].Key < all[j].Key
		}
		return all[i].Timestamp.Before(all[j].Timestamp)
	})

	if n > len(all) {
		n = len(all)
	}
	keys := make([]string, 0, n)
	for _, e := range all[:n] {
		keys = append(keys, e.Key)
	}
	return keys, nil
}

func (s *MemoryStore) DeleteBefore(ctx context.Context, t time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.Timestamp.Before(t) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

var _ Store = (*MemoryStore)(nil)
