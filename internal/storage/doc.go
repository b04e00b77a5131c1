// Package storage defines the durable key-value interface used by ringkv
// participants and provides an embedded Badger engine plus an in-memory
// implementation for tests.
//
// # Overview
//
// A participant never mutates its store speculatively. During 2PC phase 1
// it asks the store whether an operation is feasible; only a COMMIT applies
// it. The Store interface therefore pairs each mutation with a check:
//
//	Put(key, value)      ◄── CheckPut(key, value)
//	Delete(key)          ◄── CheckDelete(key)
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│        Participant (2PC)            │
//	└─────────────────────────────────────┘
//	                 │
//	                 ▼
//	┌─────────────────────────────────────┐
//	│          Store interface            │
//	└─────────────────────────────────────┘
//	          │                 │
//	          ▼                 ▼
//	    ┌───────────┐     ┌───────────┐
//	    │  Badger   │     │  Memory   │
//	    │  Store    │     │  Store    │
//	    └───────────┘     └───────────┘
//
// # Implementations
//
// BadgerStore: LSM-tree storage on local disk
//   - One Badger transaction per call
//   - SyncWrites enabled, a returned Put is durable
//   - Delete checks existence inside the same transaction
//
// MemoryStore: map guarded by sync.RWMutex
//   - No persistence (data lost on restart)
//   - Used by unit tests and crash simulations
//
// # Error Handling
//
// ErrKeyNotFound: key doesn't exist
//   - Returned by Get, Delete and CheckDelete
//
// ErrKeyLen: key empty or longer than MaxKeyLen
//
// ErrValueLen: value longer than MaxValueLen
//
// Backend failures are wrapped with github.com/pkg/errors; test the
// sentinels with errors.Is.
//
// # Concurrency
//
// All implementations are safe for concurrent use. Callers that need a
// store read and a cache update to be atomic coordinate through the
// cache's per-key lock, not through the store.
package storage
