// Package cache provides the layered verification cache. Outcomes are
// keyed by normalized citation text so that repeated analyses of revised
// drafts skip the network stages entirely.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache is the injectable caching interface owned by the verifier. Tests
// substitute deterministic fakes.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a cache key from normalized citation text. Whitespace is
// collapsed and case folded first so "200  Wn.2d 72" and "200 Wn.2d 72"
// share an entry.
func Key(citation string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(citation), " "))
	sum := sha256.Sum256([]byte(norm))
	return "casetrace:v1:" + hex.EncodeToString(sum[:])
}
