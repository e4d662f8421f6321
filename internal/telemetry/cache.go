// Package telemetry holds the single most recent DeviceData payload from
// the remote robot, for synchronous device queries.
package telemetry

import "sync"

// Cache is a single-writer/many-reader slot. There is no versioning:
// readers cannot tell whether the value changed between two calls to
// Snapshot; a client that needs liveness must poll.
type Cache struct {
	mu    sync.RWMutex
	value []byte
	set   bool
}

func NewCache() *Cache {
	return &Cache{}
}

// Store atomically replaces the cached value. Intended to be called only
// from the Robot Session's read loop.
func (c *Cache) Store(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	c.mu.Lock()
	c.value = cp
	c.set = true
	c.mu.Unlock()
}

// Snapshot returns a copy of the current value, or (nil, false) if Store
// has never been called.
func (c *Cache) Snapshot() ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.set {
		return nil, false
	}
	cp := make([]byte, len(c.value))
	copy(cp, c.value)
	return cp, true
}
