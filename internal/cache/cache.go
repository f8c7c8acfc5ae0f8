package cache

import "time"

// Cache is the result cache consumed by the rivers service. Implementations
// must never surface errors to callers: a failed read is a miss, a failed
// write is silently dropped. Staleness up to the write TTL is expected.
type Cache interface {
	// Get returns the value stored under key, or ok=false on a miss.
	Get(key string) (any, bool)
	// Set stores value under key for the given TTL.
	Set(key string, value any, ttl time.Duration)
	// Delete removes key, if present.
	Delete(key string)
}

// Nop discards all writes and misses on every read.
type Nop struct{}

// Get always reports a miss.
func (Nop) Get(string) (any, bool) { return nil, false }

// Set discards the value.
func (Nop) Set(string, any, time.Duration) {}

// Delete does nothing.
func (Nop) Delete(string) {}
