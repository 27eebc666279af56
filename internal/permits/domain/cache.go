package domain

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MetadataCache holds decimals and symbol per token address. Entries are never
// invalidated; token metadata is assumed immutable.
type MetadataCache struct {
	mu      sync.RWMutex
	entries map[common.Address]TokenMetadata
}

// NewMetadataCache creates an empty cache.
func NewMetadataCache() *MetadataCache {
	return &MetadataCache{entries: make(map[common.Address]TokenMetadata)}
}

// Get returns the cached metadata for token.
func (c *MetadataCache) Get(token common.Address) (TokenMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	md, ok := c.entries[token]
	return md, ok
}

// Put stores metadata for token. Concurrent first writes for the same token
// store the same value.
func (c *MetadataCache) Put(token common.Address, md TokenMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = md
}

// Len returns the number of cached tokens.
func (c *MetadataCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
