// pkg/hooks/html_test.go
package hooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<body>
  <ul class="items">
    <li class="item">First</li>
    <li class="item">  Second  </li>
    <li class="item"></li>
  </ul>
</body>
</html>`

func TestHTMLHookExtraction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	hook := NewHTMLHook(server.URL, "li.item", server.Client())
	payload, err := hook(context.Background(), "q")
	if err != nil {
		t.Fatalf("hook failed: %v", err)
	}

	var doc extraction
	if err := json.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(doc.Values) != 2 {
		t.Fatalf("expected 2 non-empty values, got %v", doc.Values)
	}
	if doc.Values[0] != "First" || doc.Values[1] != "Second" {
		t.Errorf("extraction mismatch: %v", doc.Values)
	}
	if doc.Selector != "li.item" {
		t.Errorf("selector not recorded: %q", doc.Selector)
	}
}

func TestHTMLHookNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	hook := NewHTMLHook(server.URL, ".missing", server.Client())
	if _, err := hook(context.Background(), "q"); err == nil {
		t.Fatal("empty extraction must be an error so the chain moves on")
	}
}

func TestHTMLHookBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	hook := NewHTMLHook(server.URL, "li", server.Client())
	if _, err := hook(context.Background(), "q"); err == nil {
		t.Fatal("non-200 response must be an error")
	}
}

func TestHTMLHookCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	hook := NewHTMLHook(server.URL, "li", server.Client())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := hook(ctx, "q"); err == nil {
		t.Fatal("cancelled context must abort the fetch")
	}
}
