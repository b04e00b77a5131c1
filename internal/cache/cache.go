// Package cache routes keys to a fixed set of second-chance shards.
package cache

import (
	"errors"
	"hash/fnv"
	"sync"

	"github.com/dreamware/ringkv/internal/shard"
)

// ErrNotFound is returned when a key is not cached
var ErrNotFound = shard.ErrNotFound

// ErrInvalidSets is returned when a cache is created without shards
var ErrInvalidSets = errors.New("cache needs at least one set")

// Cache splits the key space over a fixed number of shards so operations on
// distinct shards never contend.
//
// Like shard.Shard, Cache does not lock in Get, Put or Delete. Callers take
// Lock(key) and hold it across any sequence that must be atomic with the
// backing store.
type Cache struct {
	sets []*shard.Shard
}

// Stats aggregates the operation counters of every shard
type Stats struct {
	Sets    int                  // Number of shards
	Entries int                  // Cached entries across shards
	Ops     shard.OperationStats // Summed counters
}

// New creates a cache of numSets shards holding elemPerSet entries each
func New(numSets, elemPerSet int) (*Cache, error) {
	if numSets < 1 {
		return nil, ErrInvalidSets
	}
	c := &Cache{sets: make([]*shard.Shard, numSets)}
	for i := range c.sets {
		s, err := shard.New(elemPerSet)
		if err != nil {
			return nil, err
		}
		c.sets[i] = s
	}
	return c, nil
}

// shardFor selects the shard owning key: fnv32a(key) mod number of sets
func (c *Cache) shardFor(key string) *shard.Shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.sets[h.Sum32()%uint32(len(c.sets))]
}

// Lock returns the lock guarding the shard that owns key
func (c *Cache) Lock(key string) *sync.RWMutex {
	return c.shardFor(key).Lock()
}

// Get returns the cached value for key. Caller holds at least Lock(key).RLock.
func (c *Cache) Get(key string) ([]byte, error) {
	return c.shardFor(key).Get(key)
}

// Put caches key. Caller holds Lock(key).Lock.
func (c *Cache) Put(key string, value []byte) {
	c.shardFor(key).Put(key, value)
}

// Delete drops key. Caller holds Lock(key).Lock.
func (c *Cache) Delete(key string) error {
	return c.shardFor(key).Delete(key)
}

// Clear empties every shard, taking each shard lock in turn
func (c *Cache) Clear() {
	for _, s := range c.sets {
		l := s.Lock()
		l.Lock()
		s.Clear()
		l.Unlock()
	}
}

// Stats returns aggregated counters
func (c *Cache) Stats() Stats {
	st := Stats{Sets: len(c.sets)}
	for _, s := range c.sets {
		l := s.Lock()
		l.RLock()
		st.Entries += s.Len()
		l.RUnlock()

		ops := s.GetStats()
		st.Ops.Gets += ops.Gets
		st.Ops.Hits += ops.Hits
		st.Ops.Puts += ops.Puts
		st.Ops.Deletes += ops.Deletes
		st.Ops.Evictions += ops.Evictions
	}
	return st
}
