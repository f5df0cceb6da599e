// internal/fallback/degraded.go
package fallback

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/valpere/ResilientFetch/internal/utils"
)

// DegradationLevel is one reduced-feature response tier. Levels are totally
// ordered by severity: level 0 is the mildest degradation.
type DegradationLevel struct {
	Template         json.RawMessage `json:"template" yaml:"template"`
	DisabledFeatures []string        `json:"disabled_features" yaml:"disabled_features"`
}

type degradedSource struct {
	levels []DegradationLevel
	// unavailable marks levels known to be unusable for this source, so
	// selection can climb past them.
	unavailable map[int]bool
}

// DegradedStrategy serves reduced-feature response templates by severity.
// Selection always starts at level 0 and only climbs when a lower level has
// been marked unavailable for the source.
type DegradedStrategy struct {
	mu      sync.RWMutex
	sources map[string]*degradedSource
	logger  utils.Logger
}

// degradedPayload is the document shape returned to callers: the template
// with its disabled-feature list attached.
type degradedPayload struct {
	Degraded         bool            `json:"degraded"`
	Level            int             `json:"level"`
	DisabledFeatures []string        `json:"disabled_features"`
	Data             json.RawMessage `json:"data,omitempty"`
}

// NewDegradedStrategy creates an empty registry.
func NewDegradedStrategy(logger utils.Logger) *DegradedStrategy {
	return &DegradedStrategy{
		sources: make(map[string]*degradedSource),
		logger:  logger.WithField("strategy", string(KindDegraded)),
	}
}

// Kind implements Strategy.
func (d *DegradedStrategy) Kind() StrategyKind { return KindDegraded }

// RegisterLevels declares the ordered severity list for a source, replacing
// any previous registration and clearing availability marks.
func (d *DegradedStrategy) RegisterLevels(sourceID string, levels []DegradationLevel) {
	copied := make([]DegradationLevel, len(levels))
	copy(copied, levels)

	d.mu.Lock()
	d.sources[sourceID] = &degradedSource{
		levels:      copied,
		unavailable: make(map[int]bool),
	}
	d.mu.Unlock()
}

// MarkLevelUnavailable records that a level cannot currently serve the
// source, so chain selection climbs past it.
func (d *DegradedStrategy) MarkLevelUnavailable(sourceID string, level int) {
	d.mu.Lock()
	if src, ok := d.sources[sourceID]; ok {
		src.unavailable[level] = true
	}
	d.mu.Unlock()
}

// GetDegradedData returns the template at the requested level with its
// disabled-feature list attached, or DEGRADATION_LEVEL_NOT_FOUND when the
// level exceeds the registered count.
func (d *DegradedStrategy) GetDegradedData(sourceID string, level int) ([]byte, error) {
	d.mu.RLock()
	src, ok := d.sources[sourceID]
	d.mu.RUnlock()

	if !ok || level < 0 || level >= len(src.levels) {
		return nil, newError(ErrCodeDegradationLevelNotFound,
			"degradation level %d not registered for source %q", level, sourceID)
	}

	lv := src.levels[level]
	doc := degradedPayload{
		Degraded:         true,
		Level:            level,
		DisabledFeatures: lv.DisabledFeatures,
		Data:             lv.Template,
	}
	return json.Marshal(doc)
}

// GetFallbackData implements Strategy. It walks levels in ascending severity,
// skipping ones marked unavailable, and returns the first usable one with
// provenance "degraded:<level>".
func (d *DegradedStrategy) GetFallbackData(ctx context.Context, sourceID, key, query string) (*Result, error) {
	d.mu.RLock()
	src, ok := d.sources[sourceID]
	var count int
	var skip map[int]bool
	if ok {
		count = len(src.levels)
		skip = make(map[int]bool, len(src.unavailable))
		for lv := range src.unavailable {
			skip[lv] = true
		}
	}
	d.mu.RUnlock()

	if !ok || count == 0 {
		return nil, newError(ErrCodeNoData, "no degradation levels registered for source %q", sourceID)
	}

	for level := 0; level < count; level++ {
		if skip[level] {
			d.logger.Debugf("skipping unavailable degradation level %d for source %q", level, sourceID)
			continue
		}
		payload, err := d.GetDegradedData(sourceID, level)
		if err != nil {
			continue
		}
		return &Result{Payload: payload, Provenance: "degraded:" + strconv.Itoa(level)}, nil
	}
	return nil, newError(ErrCodeDegradationLevelNotFound,
		"all %d degradation levels unavailable for source %q", count, sourceID)
}

// LevelCount reports how many levels are registered for a source.
func (d *DegradedStrategy) LevelCount(sourceID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if src, ok := d.sources[sourceID]; ok {
		return len(src.levels)
	}
	return 0
}
