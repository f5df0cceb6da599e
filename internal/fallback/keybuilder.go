// internal/fallback/keybuilder.go
package fallback

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// maxKeyLength bounds the readable form of a key; longer keys are hashed so
// backing stores with key-size limits stay usable.
const maxKeyLength = 256

var keyFolder = cases.Fold()

// BuildKey derives the cache/historical key for a source and query. The query
// and arguments are unicode-normalized (NFKC) and case-folded so equivalent
// spellings of the same query share cache entries.
func BuildKey(sourceID, query string, args ...string) string {
	parts := make([]string, 0, len(args)+2)
	parts = append(parts, normalizeKeyPart(sourceID), normalizeKeyPart(query))
	for _, arg := range args {
		parts = append(parts, normalizeKeyPart(arg))
	}

	key := strings.Join(parts, "|")
	if len(key) <= maxKeyLength {
		return key
	}

	sum := sha256.Sum256([]byte(key))
	return key[:maxKeyLength-65] + "#" + hex.EncodeToString(sum[:])
}

func normalizeKeyPart(s string) string {
	s = strings.TrimSpace(s)
	s = norm.NFKC.String(s)
	return keyFolder.String(s)
}
