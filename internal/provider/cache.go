// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"time"

	"k8s.io/utils/clock"
)

// MetadataCache memoizes the YAML-ready metadata of targets between polls so
// that steady-state polling does not rebuild it every cycle. Entries expire
// after a multiple of the poll interval. It is used from the polling
// goroutine only and is not safe for concurrent use.
type MetadataCache struct {
	clock   clock.PassiveClock
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	metadata any
	expires  time.Time
}

// CacheExpiryPolls is the number of poll cycles a cached entry survives
// without being requested
const CacheExpiryPolls = 5

func NewMetadataCache(pollInterval time.Duration, c clock.PassiveClock) *MetadataCache {
	return &MetadataCache{
		clock:   c,
		ttl:     pollInterval * CacheExpiryPolls,
		entries: map[string]cacheEntry{},
	}
}

// Get returns the cached metadata for id, building and caching it when
// absent. Each hit extends the entry's expiry.
func (c *MetadataCache) Get(id string, build func() any) any {
	now := c.clock.Now()
	if entry, ok := c.entries[id]; ok && entry.expires.After(now) {
		entry.expires = now.Add(c.ttl)
		c.entries[id] = entry
		return entry.metadata
	}

	metadata := build()
	c.entries[id] = cacheEntry{metadata: metadata, expires: now.Add(c.ttl)}
	return metadata
}

// Prune evicts expired entries; called once per poll cycle
func (c *MetadataCache) Prune() {
	now := c.clock.Now()
	for id, entry := range c.entries {
		if !entry.expires.After(now) {
			delete(c.entries, id)
		}
	}
}
