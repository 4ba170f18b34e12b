// Package utcache implements the unlaunched-task cache (one per task
// engine): the
// side index that lets a canceled group reach tasks that were added to it
// before being launched, since groups themselves keep only a signature and
// a count, never a list of member tasks.
//
// The source shards the cache by a hash and takes a per-shard lock for
// every operation, including single-entry insert/remove - there is no
// lock-free fast path in the original despite the surrounding spec
// describing it as a "concurrent hash map". This port keeps that design
// rather than inventing a lock-free one: a fixed number of sync.Mutex-
// guarded shards, sharded by task ID so insert/remove are O(1), with
// CancelAll sweeping every shard (a cancellation's signature has no fixed
// relationship to any one task's shard, so the sweep cannot be narrowed to
// a single shard).
package utcache

import (
	"sync"

	"go.lepak.sg/mare/internal/gsig"
)

// Handle is the cache's view of an unlaunched task: enough to test
// membership and to cancel it without the cache needing to know anything
// about the task type itself.
type Handle struct {
	ID     uint64
	Sig    gsig.Signature
	Cancel func()
}

type shard struct {
	mu      sync.Mutex
	entries map[uint64]Handle
}

// Cache is a sharded store of Handles.
type Cache struct {
	shards []shard
}

const defaultShardCount = 32

// New returns a Cache with shardCount shards (defaulting to 32 when <= 0).
func New(shardCount int) *Cache {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	c := &Cache{shards: make([]shard, shardCount)}
	for i := range c.shards {
		c.shards[i].entries = make(map[uint64]Handle)
	}
	return c
}

func (c *Cache) shardFor(id uint64) *shard {
	return &c.shards[id%uint64(len(c.shards))]
}

// Insert adds or replaces the handle for id.
func (c *Cache) Insert(h Handle) {
	s := c.shardFor(h.ID)
	s.mu.Lock()
	s.entries[h.ID] = h
	s.mu.Unlock()
}

// Remove drops id from the cache. It is idempotent: removing an id that
// isn't present is a no-op.
func (c *Cache) Remove(id uint64) {
	s := c.shardFor(id)
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Contains reports whether id is currently cached.
func (c *Cache) Contains(id uint64) bool {
	s := c.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// CancelAll sweeps every entry whose signature is a superset of sig -
// i.e. every task that is a member of the group being canceled (or of any
// finer-grained join of it) - removes it from the cache, and invokes its
// Cancel callback. It returns the number of entries canceled.
func (c *Cache) CancelAll(sig gsig.Signature) int {
	var swept []Handle
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for id, h := range s.entries {
			if h.Sig.IsSupersetOf(sig) {
				swept = append(swept, h)
				delete(s.entries, id)
			}
		}
		s.mu.Unlock()
	}
	for _, h := range swept {
		h.Cancel()
	}
	return len(swept)
}

// Len returns the total number of cached entries, across all shards. It is
// intended for tests and diagnostics, not hot-path use.
func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
