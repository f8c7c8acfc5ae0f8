package cache

import (
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Memory is an in-process TTL cache. Expired entries are evicted lazily on
// read; concurrent access is safe. It does not de-duplicate concurrent
// fills of the same key.
type Memory struct {
	entries cmap.ConcurrentMap[string, entry]
	clock   func() time.Time
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: cmap.New[entry](),
		clock:   time.Now,
	}
}

// NewMemoryWithClock returns a cache using the provided clock for expiry checks.
func NewMemoryWithClock(clock func() time.Time) *Memory {
	memory := NewMemory()
	if clock != nil {
		memory.clock = clock
	}
	return memory
}

// Get returns the live value stored under key.
func (m *Memory) Get(key string) (any, bool) {
	stored, ok := m.entries.Get(key)
	if !ok {
		return nil, false
	}
	if m.clock().After(stored.expiresAt) {
		m.entries.Remove(key)
		return nil, false
	}
	return stored.value, true
}

// Set stores value under key until now+ttl. A non-positive TTL drops the write.
func (m *Memory) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.entries.Set(key, entry{value: value, expiresAt: m.clock().Add(ttl)})
}

// Delete removes key, if present.
func (m *Memory) Delete(key string) {
	m.entries.Remove(key)
}

// Len reports the number of stored entries, including not-yet-evicted expired ones.
func (m *Memory) Len() int {
	return m.entries.Count()
}
