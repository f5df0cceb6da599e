// internal/store/memory.go
package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const memoryShardCount = 32

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero = never
}

type memoryShard struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// MemoryStore is the default in-process KVStore. Keys are spread across
// shards so unrelated writers do not contend on one mutex; expired entries
// are dropped lazily on read.
type MemoryStore struct {
	shards [memoryShardCount]*memoryShard
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &memoryShard{entries: make(map[string]memoryEntry)}
	}
	return s
}

func (s *MemoryStore) shardFor(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%memoryShardCount]
}

// Get returns the value for key, or ErrNotFound when absent or expired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	shard := s.shardFor(key)

	shard.mu.RLock()
	entry, ok := shard.entries[key]
	shard.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		shard.mu.Lock()
		// Re-check under the write lock; another writer may have replaced it.
		if cur, ok := shard.entries[key]; ok && !cur.expiresAt.IsZero() && time.Now().After(cur.expiresAt) {
			delete(shard.entries, key)
		}
		shard.mu.Unlock()
		return nil, ErrNotFound
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set stores value under key with the given ttl (zero = no expiry).
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	shard := s.shardFor(key)
	shard.mu.Lock()
	shard.entries[key] = entry
	shard.mu.Unlock()
	return nil
}

// Delete removes key if present.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	shard := s.shardFor(key)
	shard.mu.Lock()
	delete(shard.entries, key)
	shard.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Len reports the number of stored entries, including not-yet-swept expired
// ones. Intended for tests and capacity monitoring.
func (s *MemoryStore) Len() int {
	total := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		total += len(shard.entries)
		shard.mu.RUnlock()
	}
	return total
}
