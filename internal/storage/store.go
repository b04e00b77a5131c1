package storage

import (
	"errors"
	"sync"
)

// Limits enforced by the feasibility checks
const (
	MaxKeyLen   = 256  // Longest accepted key in bytes
	MaxValueLen = 1024 // Longest accepted value in bytes
)

// ErrKeyNotFound is returned when a key doesn't exist in the store
var ErrKeyNotFound = errors.New("key not found")

// ErrKeyLen is returned for empty or oversized keys
var ErrKeyLen = errors.New("improper key length")

// ErrValueLen is returned for oversized values
var ErrValueLen = errors.New("value too long")

// Store defines the interface for durable key-value storage
// All implementations must be thread-safe for concurrent access
type Store interface {
	// Get retrieves a value by key
	// Returns ErrKeyNotFound if the key doesn't exist
	Get(key string) ([]byte, error)

	// Put stores a value with the given key
	// Overwrites any existing value for the key
	Put(key string, value []byte) error

	// Delete removes a key-value pair
	// Returns ErrKeyNotFound if the key doesn't exist
	Delete(key string) error

	// CheckPut reports whether Put(key, value) would be accepted
	// without changing the store
	CheckPut(key string, value []byte) error

	// CheckDelete reports whether Delete(key) would succeed
	// without changing the store
	CheckDelete(key string) error

	// Stats returns storage statistics
	Stats() StoreStats

	// Close releases resources held by the store
	Close() error
}

// StoreStats contains statistics about the store
type StoreStats struct {
	Keys  int // Number of keys
	Bytes int // Total size of all values in bytes
}

// checkPut applies the key and value limits shared by every backend
func checkPut(key string, value []byte) error {
	if len(key) == 0 || len(key) > MaxKeyLen {
		return ErrKeyLen
	}
	if len(value) > MaxValueLen {
		return ErrValueLen
	}
	return nil
}

// MemoryStore implements Store interface with in-memory storage
// Uses sync.RWMutex for thread-safe concurrent access
type MemoryStore struct {
	mu   sync.RWMutex      // Protects concurrent access
	data map[string][]byte // Key-value storage
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Get retrieves a value by key
// Returns a copy of the value to prevent external modification
func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[key]
	if !exists {
		return nil, ErrKeyNotFound
	}

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// Put stores a value with the given key
// Makes a copy of the value to prevent external modification
func (m *MemoryStore) Put(key string, value []byte) error {
	if err := checkPut(key, value); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored

	return nil
}

// Delete removes a key-value pair
func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[key]; !exists {
		return ErrKeyNotFound
	}
	delete(m.data, key)
	return nil
}

// CheckPut validates key and value sizes
func (m *MemoryStore) CheckPut(key string, value []byte) error {
	return checkPut(key, value)
}

// CheckDelete fails with ErrKeyNotFound when the key is absent
func (m *MemoryStore) CheckDelete(key string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, exists := m.data[key]; !exists {
		return ErrKeyNotFound
	}
	return nil
}

// Stats returns storage statistics
func (m *MemoryStore) Stats() StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalBytes := 0
	for _, value := range m.data {
		totalBytes += len(value)
	}

	return StoreStats{
		Keys:  len(m.data),
		Bytes: totalBytes,
	}
}

// Close is a no-op for the memory store
func (m *MemoryStore) Close() error {
	return nil
}
