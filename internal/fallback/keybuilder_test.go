// internal/fallback/keybuilder_test.go
package fallback

import (
	"strings"
	"testing"
)

func TestBuildKeyNormalization(t *testing.T) {
	tests := []struct {
		name string
		a    [2]string
		b    [2]string
	}{
		{"case folded", [2]string{"SRC", "Query"}, [2]string{"src", "query"}},
		{"whitespace trimmed", [2]string{" src ", "query\n"}, [2]string{"src", "query"}},
		{"nfkc equivalent", [2]string{"src", "ﬁle"}, [2]string{"src", "file"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := BuildKey(tt.a[0], tt.a[1])
			kb := BuildKey(tt.b[0], tt.b[1])
			if ka != kb {
				t.Errorf("equivalent inputs produced distinct keys: %q vs %q", ka, kb)
			}
		})
	}
}

func TestBuildKeyDistinctInputs(t *testing.T) {
	if BuildKey("src", "a") == BuildKey("src", "b") {
		t.Error("distinct queries must produce distinct keys")
	}
	if BuildKey("src1", "q") == BuildKey("src2", "q") {
		t.Error("distinct sources must produce distinct keys")
	}
	if BuildKey("src", "q", "x") == BuildKey("src", "q", "y") {
		t.Error("distinct args must produce distinct keys")
	}
}

func TestBuildKeyLongInputsHashed(t *testing.T) {
	long1 := strings.Repeat("a", 500)
	long2 := strings.Repeat("a", 499) + "b"

	k1 := BuildKey("src", long1)
	k2 := BuildKey("src", long2)

	if len(k1) > maxKeyLength {
		t.Errorf("hashed key exceeds limit: %d", len(k1))
	}
	if k1 == k2 {
		t.Error("distinct long inputs must still produce distinct keys")
	}
	if !strings.Contains(k1, "#") {
		t.Error("hashed keys carry a # separator before the digest")
	}
}
