// Package cache provides the in-memory resolution cache: hostname to
// resolved addresses with a fixed time-to-live. Entries live only in
// process memory and are superseded, never merged, on re-resolution.
package cache

import (
	"errors"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ErrCacheNotFound is returned when a hostname has no live entry.
var ErrCacheNotFound = errors.New("cache not found")

const shardCount = 256

// Entry is one cached resolution.
type Entry struct {
	Addresses []string
	Stored    time.Time
}

// (Entry).Expired reports whether the entry is older than ttl.
func (e Entry) Expired(ttl time.Duration) bool {
	return time.Since(e.Stored) > ttl
}

// Cache is a sharded hostname cache with random per-shard eviction.
type Cache struct {
	shards [shardCount]*shard

	ttl time.Duration
}

// New returns a cache holding at most size entries whose entries
// expire after ttl.
func New(size int, ttl time.Duration) *Cache {
	if size < shardCount {
		size = shardCount
	}

	c := &Cache{ttl: ttl}
	for i := range c.shards {
		c.shards[i] = newShard(size / shardCount)
	}

	return c
}

// Key returns the cache key for a hostname. Lookups are
// case-insensitive per RFC 1035.
func Key(hostname string) uint64 {
	return xxhash.Sum64String(strings.ToLower(hostname))
}

// (*Cache).Get returns the live addresses for hostname. An expired
// entry is treated as absent and dropped.
func (c *Cache) Get(hostname string) ([]string, error) {
	key := Key(hostname)
	s := c.shards[key&(shardCount-1)]

	en, ok := s.Get(key)
	if !ok {
		return nil, ErrCacheNotFound
	}

	if en.Expired(c.ttl) {
		s.Remove(key)
		return nil, ErrCacheNotFound
	}

	return en.Addresses, nil
}

// (*Cache).Set stores addresses for hostname, overwriting any
// previous entry.
func (c *Cache) Set(hostname string, addresses []string) {
	key := Key(hostname)
	c.shards[key&(shardCount-1)].Add(key, Entry{Addresses: addresses, Stored: time.Now()})
}

// (*Cache).Remove drops the entry for hostname if present.
func (c *Cache) Remove(hostname string) {
	key := Key(hostname)
	c.shards[key&(shardCount-1)].Remove(key)
}

// (*Cache).Purge drops every entry.
func (c *Cache) Purge() {
	for _, s := range c.shards {
		s.Purge()
	}
}

// (*Cache).Len returns the number of cached entries.
func (c *Cache) Len() int {
	l := 0
	for _, s := range c.shards {
		l += s.Len()
	}
	return l
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }
