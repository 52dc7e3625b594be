// Copyright 2016-2020 The CoreDNS authors and contributors
// Adapted for SDNS usage by Semih Alev.
// Adapted for evoarc-dns resolution entries.

package cache

import "sync"

// shard is a fixed-size map with random eviction.
type shard struct {
	items map[uint64]Entry
	size  int

	sync.RWMutex
}

func newShard(size int) *shard {
	if size < 1 {
		size = 1
	}
	return &shard{items: make(map[uint64]Entry), size: size}
}

// Add stores el under key, evicting a random entry when full.
func (s *shard) Add(key uint64, el Entry) {
	if s.Len()+1 > s.size {
		s.Evict()
	}

	s.Lock()
	s.items[key] = el
	s.Unlock()
}

// Remove deletes the element indexed by key.
func (s *shard) Remove(key uint64) {
	s.Lock()
	delete(s.items, key)
	s.Unlock()
}

// Evict removes a random element.
func (s *shard) Evict() {
	hasKey := false
	var key uint64

	s.RLock()
	for k := range s.items {
		key = k
		hasKey = true
		break
	}
	s.RUnlock()

	if !hasKey {
		return
	}

	// If this item is gone between the RUnlock and Lock race we don't care.
	s.Remove(key)
}

// Get looks up the element indexed under key.
func (s *shard) Get(key uint64) (Entry, bool) {
	s.RLock()
	el, found := s.items[key]
	s.RUnlock()
	return el, found
}

// Purge drops all elements.
func (s *shard) Purge() {
	s.Lock()
	s.items = make(map[uint64]Entry)
	s.Unlock()
}

// Len returns the current length.
func (s *shard) Len() int {
	s.RLock()
	l := len(s.items)
	s.RUnlock()
	return l
}
