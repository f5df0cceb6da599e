// internal/fallback/degraded_test.go
package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func newTestDegraded() *DegradedStrategy {
	d := NewDegradedStrategy(testLogger())
	d.RegisterLevels("src", []DegradationLevel{
		{Template: []byte(`{"view": "full-lite"}`), DisabledFeatures: []string{"charts"}},
		{Template: []byte(`{"view": "minimal"}`), DisabledFeatures: []string{"charts", "search"}},
	})
	return d
}

func TestDegradedGetLevel(t *testing.T) {
	d := newTestDegraded()

	payload, err := d.GetDegradedData("src", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var doc struct {
		Degraded         bool            `json:"degraded"`
		Level            int             `json:"level"`
		DisabledFeatures []string        `json:"disabled_features"`
		Data             json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !doc.Degraded || doc.Level != 1 {
		t.Errorf("unexpected level document: %+v", doc)
	}
	if len(doc.DisabledFeatures) != 2 {
		t.Errorf("disabled features not attached: %v", doc.DisabledFeatures)
	}
}

func TestDegradedLevelNotFound(t *testing.T) {
	d := newTestDegraded()

	tests := []struct {
		name     string
		sourceID string
		level    int
	}{
		{"level beyond count", "src", 5},
		{"negative level", "src", -1},
		{"unknown source", "other", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.GetDegradedData(tt.sourceID, tt.level)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, newError(ErrCodeDegradationLevelNotFound, "")) {
				t.Errorf("expected DEGRADATION_LEVEL_NOT_FOUND, got %v", err)
			}
		})
	}
}

func TestDegradedChainStartsAtLevelZero(t *testing.T) {
	d := newTestDegraded()

	result, err := d.GetFallbackData(context.Background(), "src", "k", "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provenance != "degraded:0" {
		t.Errorf("expected degraded:0, got %q", result.Provenance)
	}
}

func TestDegradedClimbsPastUnavailableLevel(t *testing.T) {
	d := newTestDegraded()
	d.MarkLevelUnavailable("src", 0)

	result, err := d.GetFallbackData(context.Background(), "src", "k", "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Provenance != "degraded:1" {
		t.Errorf("expected degraded:1, got %q", result.Provenance)
	}

	d.MarkLevelUnavailable("src", 1)
	_, err = d.GetFallbackData(context.Background(), "src", "k", "q")
	if err == nil {
		t.Fatal("expected error when every level is unavailable")
	}
}

func TestDegradedUnregisteredSource(t *testing.T) {
	d := NewDegradedStrategy(testLogger())

	_, err := d.GetFallbackData(context.Background(), "src", "k", "q")
	if err == nil {
		t.Fatal("expected error for unregistered source")
	}
	if CodeOf(err) != ErrCodeNoData {
		t.Errorf("expected NO_DATA, got %s", CodeOf(err))
	}
}
