// Package shard implements the fixed-capacity cache bucket used by ringkv's
// cache layer, providing a bounded key-value set with second-chance eviction
// and a single reader/writer lock.
//
// # Overview
//
// A shard holds at most N entries (N ≥ 2). Each entry carries a reference
// bit. Reads and overwrites set the bit; new entries start with it cleared.
// When a new key arrives at a full shard, one entry is evicted:
//
//	head ──► [A ref=1] ─► [B ref=0] ─► [C ref=1] ◄── tail
//
//	1. A is referenced: clear bit, move to tail
//	2. B is not referenced: evict, stop
//	3. insert new key at tail with ref=0
//
// # Storage Layout
//
// Entries live in a preallocated arena sized to the capacity:
//   - index: map from key to arena slot, O(1) lookup
//   - list: doubly linked recency order built from slot indexes
//   - free: unused slots, reused on insert
//
// No entry is ever reachable by pointer from outside the shard.
//
// # Locking
//
// The shard never locks itself inside Get, Put or Delete. Callers acquire
// Lock() first:
//   - RLock for Get (the reference bit is updated atomically)
//   - Lock for Put, Delete and Clear
//
// This lets higher layers hold one critical section across a cache miss,
// a backing-store read and the repopulating Put.
//
// # Usage
//
//	s, _ := shard.New(4)
//	l := s.Lock()
//	l.Lock()
//	s.Put("user:1", []byte("alice"))
//	l.Unlock()
package shard
