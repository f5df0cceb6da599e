// internal/fallback/mock_test.go
package fallback

import (
	"context"
	"encoding/json"
	"testing"
)

func TestMockNeverAbsent(t *testing.T) {
	m := NewMockStrategy(testLogger())

	result, err := m.GetFallbackData(context.Background(), "unregistered", "k", "q")
	if err != nil {
		t.Fatalf("mock must never report absent: %v", err)
	}
	if len(result.Payload) == 0 {
		t.Fatal("mock payload must be non-empty")
	}
	if result.Provenance != ProvenanceMock {
		t.Errorf("expected provenance %q, got %q", ProvenanceMock, result.Provenance)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(result.Payload, &doc); err != nil {
		t.Fatalf("mock payload must be valid JSON: %v", err)
	}
	if doc["synthetic"] != true {
		t.Error("mock payload must be tagged synthetic")
	}
}

func TestMockRegisteredTemplate(t *testing.T) {
	m := NewMockStrategy(testLogger())
	if err := m.RegisterTemplate("prices", []byte(`{"price": 0, "currency": "USD"}`)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	result, err := m.GetFallbackData(context.Background(), "prices", "k", "widget")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var doc struct {
		Synthetic bool            `json:"synthetic"`
		SourceID  string          `json:"source_id"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(result.Payload, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !doc.Synthetic {
		t.Error("registered template must still be tagged synthetic")
	}
	if doc.SourceID != "prices" {
		t.Errorf("unexpected source id %q", doc.SourceID)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(doc.Data, &data); err != nil {
		t.Fatalf("template not embedded: %v", err)
	}
	if data["currency"] != "USD" {
		t.Error("template content lost")
	}
}

func TestMockRejectsInvalidTemplate(t *testing.T) {
	m := NewMockStrategy(testLogger())
	err := m.RegisterTemplate("bad", []byte(`{not json`))
	if err == nil {
		t.Fatal("expected invalid template to be rejected")
	}
	if CodeOf(err) != ErrCodeInvalidConfig {
		t.Errorf("expected INVALID_CONFIG, got %s", CodeOf(err))
	}
}
