package relaylist

import (
	"sync"
	"time"
)

// Cache holds the most recently fetched relay list along with the
// content digest and signed timestamp used to decide when to refetch.
// Safe for concurrent use.
type Cache struct {
	mu        sync.RWMutex
	list      RelayList
	digest    string
	timestamp time.Time
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{}
}

// Get returns the current relay list and the digest it was fetched under.
func (c *Cache) Get() (RelayList, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.list, c.digest
}

// Timestamp returns the signed timestamp of the cached relay list, or the
// zero time if nothing has been cached yet.
func (c *Cache) Timestamp() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timestamp
}

// Digest returns the content digest of the cached relay list, or "" if
// nothing has been cached yet.
func (c *Cache) Digest() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.digest
}

// Update replaces the cached relay list, digest, and timestamp.
func (c *Cache) Update(list RelayList, digest string, timestamp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = list
	c.digest = digest
	c.timestamp = timestamp
}
