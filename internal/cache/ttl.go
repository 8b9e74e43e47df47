package cache

import "time"

// TTLPolicy resolves entry lifetimes per key class. Configured
// overrides win; everything else gets the default.
type TTLPolicy struct {
	def       time.Duration
	overrides map[string]time.Duration
}

// NewTTLPolicy builds a policy from the configured default and
// overrides. A non-positive default falls back to one hour.
func NewTTLPolicy(def time.Duration, overrides map[string]time.Duration) TTLPolicy {
	if def <= 0 {
		def = time.Hour
	}
	return TTLPolicy{def: def, overrides: overrides}
}

// For returns the TTL for a key class.
func (p TTLPolicy) For(class string) time.Duration {
	if ttl, ok := p.overrides[class]; ok && ttl > 0 {
		return ttl
	}
	if p.def <= 0 {
		return time.Hour
	}
	return p.def
}
