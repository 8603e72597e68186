package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// AssetID derives the canonical asset identifier from an entity's stable
// slug. It is a pure function so every caller resolves the same id without
// a lookup table; slugs are case-insensitive.
func AssetID(slug string) string {
	normalized := strings.ToLower(strings.TrimSpace(slug))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
