package shard

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNotFound is returned when a key is not cached in the shard
var ErrNotFound = errors.New("key not found")

// ErrInvalidCapacity is returned when a shard is created with fewer than two slots
var ErrInvalidCapacity = errors.New("shard capacity must be at least 2")

// nilSlot terminates the recency list
const nilSlot = -1

// entry is one arena slot. Links are slot indexes, not pointers.
type entry struct {
	key    string
	value  []byte
	refbit atomic.Bool
	prev   int
	next   int
}

// Shard is a fixed-capacity cache bucket using second-chance eviction.
//
// Entries live in a preallocated arena. The index maps keys to arena slots
// and the recency list orders slots from oldest (head) to newest (tail).
//
// Get, Put and Delete do not lock. Callers hold Lock() around every call:
// the read lock is enough for Get, Put and Delete need the write lock.
// This lets a caller bracket a miss, a backing-store read and a Put in one
// critical section.
type Shard struct {
	mu       sync.RWMutex   // Guards every field below
	index    map[string]int // key -> arena slot
	entries  []entry        // Arena, len == capacity
	free     []int          // Unused arena slots
	head     int            // Oldest entry
	tail     int            // Newest entry
	capacity int            // Maximum entries
	count    int            // Current entries
	Stats    *OperationStats
}

// OperationStats tracks operation counts
type OperationStats struct {
	Gets      uint64 // Number of get operations
	Hits      uint64 // Number of gets served from the shard
	Puts      uint64 // Number of put operations
	Deletes   uint64 // Number of delete operations
	Evictions uint64 // Number of entries evicted to make room
}

// New creates a shard holding at most capacity entries
func New(capacity int) (*Shard, error) {
	if capacity < 2 {
		return nil, ErrInvalidCapacity
	}
	s := &Shard{
		index:    make(map[string]int, capacity),
		entries:  make([]entry, capacity),
		free:     make([]int, 0, capacity),
		head:     nilSlot,
		tail:     nilSlot,
		capacity: capacity,
		Stats:    &OperationStats{},
	}
	for i := capacity - 1; i >= 0; i-- {
		s.free = append(s.free, i)
	}
	return s, nil
}

// Lock returns the lock guarding this shard
func (s *Shard) Lock() *sync.RWMutex {
	return &s.mu
}

// Get returns the cached value for key and marks the entry as referenced.
// Safe under the read lock: the reference bit is atomic.
func (s *Shard) Get(key string) ([]byte, error) {
	atomic.AddUint64(&s.Stats.Gets, 1)
	slot, ok := s.index[key]
	if !ok {
		return nil, ErrNotFound
	}
	atomic.AddUint64(&s.Stats.Hits, 1)
	e := &s.entries[slot]
	e.refbit.Store(true)

	result := make([]byte, len(e.value))
	copy(result, e.value)
	return result, nil
}

// Put inserts or overwrites key. Inserting into a full shard evicts exactly
// one entry first.
func (s *Shard) Put(key string, value []byte) {
	atomic.AddUint64(&s.Stats.Puts, 1)
	stored := make([]byte, len(value))
	copy(stored, value)

	if slot, ok := s.index[key]; ok {
		e := &s.entries[slot]
		e.value = stored
		e.refbit.Store(true)
		return
	}

	if s.count == s.capacity {
		s.evict()
	}

	slot := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	e := &s.entries[slot]
	e.key = key
	e.value = stored
	e.refbit.Store(false)
	s.pushBack(slot)
	s.index[key] = slot
	s.count++
}

// Delete removes key from the shard
func (s *Shard) Delete(key string) error {
	atomic.AddUint64(&s.Stats.Deletes, 1)
	slot, ok := s.index[key]
	if !ok {
		return ErrNotFound
	}
	s.remove(slot)
	return nil
}

// Clear drops every entry
func (s *Shard) Clear() {
	for key, slot := range s.index {
		s.release(slot)
		delete(s.index, key)
	}
	s.head, s.tail = nilSlot, nilSlot
	s.count = 0
}

// Len returns the number of cached entries
func (s *Shard) Len() int {
	return s.count
}

// Capacity returns the maximum number of entries
func (s *Shard) Capacity() int {
	return s.capacity
}

// GetStats returns a snapshot of the operation counters
func (s *Shard) GetStats() OperationStats {
	return OperationStats{
		Gets:      atomic.LoadUint64(&s.Stats.Gets),
		Hits:      atomic.LoadUint64(&s.Stats.Hits),
		Puts:      atomic.LoadUint64(&s.Stats.Puts),
		Deletes:   atomic.LoadUint64(&s.Stats.Deletes),
		Evictions: atomic.LoadUint64(&s.Stats.Evictions),
	}
}

// evict walks from the head. A referenced entry loses its bit and moves to
// the tail; the first unreferenced entry is removed. Terminates within one
// full pass because every visited entry ends up unreferenced.
func (s *Shard) evict() {
	for slot := s.head; slot != nilSlot; slot = s.head {
		e := &s.entries[slot]
		if e.refbit.Load() {
			e.refbit.Store(false)
			s.unlink(slot)
			s.pushBack(slot)
			continue
		}
		atomic.AddUint64(&s.Stats.Evictions, 1)
		s.remove(slot)
		return
	}
}

func (s *Shard) remove(slot int) {
	delete(s.index, s.entries[slot].key)
	s.unlink(slot)
	s.release(slot)
	s.count--
}

func (s *Shard) release(slot int) {
	e := &s.entries[slot]
	e.key = ""
	e.value = nil
	e.refbit.Store(false)
	e.prev, e.next = nilSlot, nilSlot
	s.free = append(s.free, slot)
}

func (s *Shard) pushBack(slot int) {
	e := &s.entries[slot]
	e.prev = s.tail
	e.next = nilSlot
	if s.tail != nilSlot {
		s.entries[s.tail].next = slot
	} else {
		s.head = slot
	}
	s.tail = slot
}

func (s *Shard) unlink(slot int) {
	e := &s.entries[slot]
	if e.prev != nilSlot {
		s.entries[e.prev].next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nilSlot {
		s.entries[e.next].prev = e.prev
	} else {
		s.tail = e.prev
	}
	e.prev, e.next = nilSlot, nilSlot
}
