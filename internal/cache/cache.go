// Package cache provides the TTL key/value cache used by the metadata and
// pricing resolvers.
//
// Two implementations exist: a process-wide LRU with expiry and a
// Redis-backed store with per-entry TTL. The layered cache composes them
// so that Redis failures degrade to the in-memory tier. Stale-on-error is
// not permitted anywhere: an expired or unreachable entry is an absence,
// and the caller decides what to do.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Cache is the read-through TTL cache contract
type Cache interface {
	// Get retrieves a value; ok is false on miss or expiry
	Get(ctx context.Context, key string) (value []byte, ok bool)

	// Set stores a value with a TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error

	// Exists reports whether a live entry is present
	Exists(ctx context.Context, key string) bool

	// HitRate returns hits / (hits + misses), 0 when untouched
	HitRate() float64
}

// Key assembles a deterministic cache key:
// domain:account:region:resource_type:selector[:attr_hash].
// Attributes are hashed over sorted pairs so the same logical lookup
// always lands on the same key.
func Key(domain, account, region, resourceType, selector string, attrs map[string]string) string {
	parts := []string{domain, account, region, resourceType, selector}
	if len(attrs) > 0 {
		parts = append(parts, AttrHash(attrs))
	}
	return strings.Join(parts, ":")
}

// AttrHash returns a stable digest over sorted attribute pairs.
func AttrHash(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(attrs[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// Domain extracts the leading key segment; used for TTL overrides.
func Domain(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
