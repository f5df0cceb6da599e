// internal/fallback/historical.go
package fallback

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"github.com/valpere/ResilientFetch/internal/store"
	"github.com/valpere/ResilientFetch/internal/utils"
)

const historyShardCount = 32

type historicalEntry struct {
	Data     []byte    `json:"data"`
	StoredAt time.Time `json:"stored_at"`
}

type historyShard struct {
	mu sync.Mutex
	// entries holds the per-key sequences, newest last.
	entries map[string][]historicalEntry
	// lastWrite drives least-recently-written eviction under the global cap.
	lastWrite map[string]time.Time
	total     int
}

// HistoricalStrategy keeps a bounded per-key history of prior successful
// payloads. It prefers the newest entry still inside the (long) historical
// TTL; when everything has expired it serves the oldest entry as an
// explicitly stale last resort rather than failing the chain.
//
// Appends are serialized per shard, so no two appends for one key can
// interleave; unrelated keys on different shards proceed in parallel.
type HistoricalStrategy struct {
	shards [historyShardCount]*historyShard

	ttl             time.Duration
	depth           int
	shardEntryLimit int

	backing store.KVStore
	logger  utils.Logger
}

// NewHistoricalStrategy builds the strategy from manager configuration.
// backing may be nil, in which case sequences live in the sharded maps.
func NewHistoricalStrategy(cfg *Config, backing store.KVStore, logger utils.Logger) *HistoricalStrategy {
	h := &HistoricalStrategy{
		ttl:             cfg.HistoricalTTL,
		depth:           cfg.HistoryDepth,
		shardEntryLimit: cfg.MaxHistoricalEntries / historyShardCount,
		backing:         backing,
		logger:          logger.WithField("strategy", string(KindHistorical)),
	}
	if h.shardEntryLimit < cfg.HistoryDepth {
		h.shardEntryLimit = cfg.HistoryDepth
	}
	for i := range h.shards {
		h.shards[i] = &historyShard{
			entries:   make(map[string][]historicalEntry),
			lastWrite: make(map[string]time.Time),
		}
	}
	return h
}

// Kind implements Strategy.
func (h *HistoricalStrategy) Kind() StrategyKind { return KindHistorical }

func (h *HistoricalStrategy) shardFor(key string) *historyShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return h.shards[hash.Sum32()%historyShardCount]
}

// Put appends the payload to the key's history, dropping the oldest entry
// once the sequence exceeds the configured depth. Historical writes are never
// rejected for size.
func (h *HistoricalStrategy) Put(ctx context.Context, key string, payload []byte) error {
	entry := historicalEntry{Data: make([]byte, len(payload)), StoredAt: time.Now()}
	copy(entry.Data, payload)

	if h.backing != nil {
		return h.putBacking(ctx, key, entry)
	}

	shard := h.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	seq := append(shard.entries[key], entry)
	if len(seq) > h.depth {
		dropped := len(seq) - h.depth
		seq = append(seq[:0:0], seq[dropped:]...)
		shard.total -= dropped
	}
	if _, existed := shard.entries[key]; !existed && shard.total+len(seq) > h.shardEntryLimit {
		h.evictOldestKeyLocked(shard)
	}
	shard.entries[key] = seq
	shard.lastWrite[key] = entry.StoredAt
	shard.total++
	return nil
}

// evictOldestKeyLocked removes the least-recently-written key's whole
// sequence. Caller holds the shard lock.
func (h *HistoricalStrategy) evictOldestKeyLocked(shard *historyShard) {
	var victim string
	var oldest time.Time
	for key, at := range shard.lastWrite {
		if victim == "" || at.Before(oldest) {
			victim = key
			oldest = at
		}
	}
	if victim == "" {
		return
	}
	shard.total -= len(shard.entries[victim])
	delete(shard.entries, victim)
	delete(shard.lastWrite, victim)
	h.logger.Debugf("evicted history for key %q under global cap", victim)
}

func (h *HistoricalStrategy) putBacking(ctx context.Context, key string, entry historicalEntry) error {
	storeKey := "hist:" + key
	seq := h.loadBacking(ctx, storeKey)
	seq = append(seq, entry)
	if len(seq) > h.depth {
		seq = seq[len(seq)-h.depth:]
	}
	data, err := json.Marshal(seq)
	if err != nil {
		return err
	}
	// No store-level TTL: the stale-last-resort lookup needs expired
	// entries to stay readable.
	return h.backing.Set(ctx, storeKey, data, 0)
}

func (h *HistoricalStrategy) loadBacking(ctx context.Context, storeKey string) []historicalEntry {
	data, err := h.backing.Get(ctx, storeKey)
	if err != nil {
		return nil
	}
	var seq []historicalEntry
	if err := json.Unmarshal(data, &seq); err != nil {
		h.logger.Warnf("corrupt history for %q: %v", storeKey, err)
		return nil
	}
	return seq
}

// Get scans the key's history newest to oldest and returns the first entry
// inside the historical TTL. If every entry has expired, the oldest entry is
// returned with stale=true.
func (h *HistoricalStrategy) Get(ctx context.Context, key string) (payload []byte, stale bool, err error) {
	var seq []historicalEntry

	if h.backing != nil {
		seq = h.loadBacking(ctx, "hist:"+key)
	} else {
		shard := h.shardFor(key)
		shard.mu.Lock()
		stored := shard.entries[key]
		seq = make([]historicalEntry, len(stored))
		copy(seq, stored)
		shard.mu.Unlock()
	}

	if len(seq) == 0 {
		return nil, false, newError(ErrCodeNoData, "no history for key %q", key)
	}

	now := time.Now()
	for i := len(seq) - 1; i >= 0; i-- {
		if now.Sub(seq[i].StoredAt) <= h.ttl {
			return seq[i].Data, false, nil
		}
	}
	// Deliberate last resort: serve arbitrarily stale data, tagged so the
	// caller can apply its own staleness policy.
	return seq[0].Data, true, nil
}

// GetFallbackData implements Strategy.
func (h *HistoricalStrategy) GetFallbackData(ctx context.Context, sourceID, key, query string) (*Result, error) {
	payload, stale, err := h.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Result{Payload: payload, Provenance: ProvenanceHistorical, Stale: stale}, nil
}

// EntryCount reports the total number of in-memory history entries.
func (h *HistoricalStrategy) EntryCount() int {
	total := 0
	for _, shard := range h.shards {
		shard.mu.Lock()
		total += shard.total
		shard.mu.Unlock()
	}
	return total
}
