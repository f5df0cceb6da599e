// internal/fallback/cache.go
package fallback

import (
	"bytes"
	"context"
	"hash/fnv"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/valpere/ResilientFetch/internal/store"
	"github.com/valpere/ResilientFetch/internal/utils"
)

const (
	cacheShardCount = 32
	// cacheSoftCapacity is the per-shard entry count that triggers an
	// expired-entry sweep before accepting new writes. Sweeps are
	// shard-local, so one sweep never blocks unrelated keys.
	cacheSoftCapacity = 2048
)

// Envelope flags for payloads written through a durable store.
const (
	envelopeRaw  byte = 0x00
	envelopeGzip byte = 0x01
)

type cacheEntry struct {
	data       []byte
	compressed bool
	storedAt   time.Time
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// CacheStrategy is the first line of fallback: a TTL-bound key to payload
// store. Expiry is evaluated lazily on read; there is no background sweeper
// on the hot path.
type CacheStrategy struct {
	shards [cacheShardCount]*cacheShard

	ttl                  time.Duration
	maxPayloadBytes      int
	compressionEnabled   bool
	compressionThreshold int

	// backing is the optional durable store; when set, the shard maps are
	// bypassed and TTL enforcement is delegated to the store.
	backing store.KVStore

	metrics *Metrics
	logger  utils.Logger
}

// NewCacheStrategy builds the cache from manager configuration. backing may
// be nil, in which case the in-memory sharded map is used.
func NewCacheStrategy(cfg *Config, backing store.KVStore, metrics *Metrics, logger utils.Logger) *CacheStrategy {
	c := &CacheStrategy{
		ttl:                  cfg.CacheTTL,
		maxPayloadBytes:      cfg.MaxCachedPayloadBytes,
		compressionEnabled:   cfg.CompressionEnabled,
		compressionThreshold: cfg.CompressionThreshold,
		backing:              backing,
		metrics:              metrics,
		logger:               logger.WithField("strategy", string(KindCache)),
	}
	for i := range c.shards {
		c.shards[i] = &cacheShard{entries: make(map[string]cacheEntry)}
	}
	return c
}

// Kind implements Strategy.
func (c *CacheStrategy) Kind() StrategyKind { return KindCache }

func (c *CacheStrategy) shardFor(key string) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%cacheShardCount]
}

// Get returns the cached payload for key, or a NO_DATA error when missing or
// past TTL.
func (c *CacheStrategy) Get(ctx context.Context, key string) ([]byte, error) {
	if c.backing != nil {
		data, err := c.backing.Get(ctx, "cache:"+key)
		if err != nil {
			if err == store.ErrNotFound {
				return nil, newError(ErrCodeNoData, "cache miss for key %q", key)
			}
			return nil, wrapError(err, ErrCodeNoData, "cache backend read failed")
		}
		return decodeEnvelope(data)
	}

	shard := c.shardFor(key)
	shard.mu.RLock()
	entry, ok := shard.entries[key]
	shard.mu.RUnlock()

	if !ok {
		return nil, newError(ErrCodeNoData, "cache miss for key %q", key)
	}
	if time.Since(entry.storedAt) > c.ttl {
		return nil, newError(ErrCodeNoData, "cache entry for key %q expired", key)
	}

	if entry.compressed {
		return gunzipPayload(entry.data)
	}
	payload := make([]byte, len(entry.data))
	copy(payload, entry.data)
	return payload, nil
}

// Put stores the payload under key. Oversized payloads are rejected as a
// counted no-op; the caller's request is never failed by a cache write.
func (c *CacheStrategy) Put(ctx context.Context, key string, payload []byte) error {
	if c.maxPayloadBytes > 0 && len(payload) > c.maxPayloadBytes {
		c.metrics.RecordRejectedWrite()
		c.logger.Warnf("payload for key %q exceeds cache limit (%d > %d bytes)",
			key, len(payload), c.maxPayloadBytes)
		return newError(ErrCodePayloadTooLarge,
			"payload of %d bytes exceeds limit of %d", len(payload), c.maxPayloadBytes)
	}

	data, compressed := c.maybeCompress(payload)

	if c.backing != nil {
		return c.backing.Set(ctx, "cache:"+key, encodeEnvelope(data, compressed), c.ttl)
	}

	shard := c.shardFor(key)
	shard.mu.Lock()
	if len(shard.entries) >= cacheSoftCapacity {
		c.sweepShardLocked(shard)
	}
	shard.entries[key] = cacheEntry{data: data, compressed: compressed, storedAt: time.Now()}
	shard.mu.Unlock()
	return nil
}

// sweepShardLocked drops all TTL-expired entries in one shard. Caller holds
// the shard lock.
func (c *CacheStrategy) sweepShardLocked(shard *cacheShard) {
	now := time.Now()
	for key, entry := range shard.entries {
		if now.Sub(entry.storedAt) > c.ttl {
			delete(shard.entries, key)
		}
	}
}

// GetFallbackData implements Strategy.
func (c *CacheStrategy) GetFallbackData(ctx context.Context, sourceID, key, query string) (*Result, error) {
	payload, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Result{Payload: payload, Provenance: ProvenanceCache}, nil
}

// Len reports the number of in-memory entries, expired ones included.
func (c *CacheStrategy) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.entries)
		shard.mu.RUnlock()
	}
	return total
}

func (c *CacheStrategy) maybeCompress(payload []byte) ([]byte, bool) {
	if !c.compressionEnabled || len(payload) < c.compressionThreshold {
		data := make([]byte, len(payload))
		copy(data, payload)
		return data, false
	}

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		w.Close()
		data := make([]byte, len(payload))
		copy(data, payload)
		return data, false
	}
	if err := w.Close(); err != nil {
		data := make([]byte, len(payload))
		copy(data, payload)
		return data, false
	}
	// Compression can inflate small or already-compressed payloads.
	if buf.Len() >= len(payload) {
		data := make([]byte, len(payload))
		copy(data, payload)
		return data, false
	}
	return buf.Bytes(), true
}

func gunzipPayload(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, wrapError(err, ErrCodeNoData, "corrupt compressed cache entry")
	}
	defer r.Close()

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, wrapError(err, ErrCodeNoData, "failed to decompress cache entry")
	}
	return payload, nil
}

func encodeEnvelope(data []byte, compressed bool) []byte {
	flag := envelopeRaw
	if compressed {
		flag = envelopeGzip
	}
	out := make([]byte, 0, len(data)+1)
	out = append(out, flag)
	return append(out, data...)
}

func decodeEnvelope(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, newError(ErrCodeNoData, "empty cache envelope")
	}
	switch data[0] {
	case envelopeGzip:
		return gunzipPayload(data[1:])
	default:
		return data[1:], nil
	}
}
