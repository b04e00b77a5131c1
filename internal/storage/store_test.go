package storage

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns a fresh instance of every Store implementation
func backends(t *testing.T) map[string]Store {
	t.Helper()
	b, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"badger": b,
	}
}

// TestStore runs the shared behaviour suite against each backend
func TestStore(t *testing.T) {
	for name, store := range backends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			t.Run("missing key", func(t *testing.T) {
				_, err := store.Get("nonexistent")
				assert.ErrorIs(t, err, ErrKeyNotFound)
			})

			t.Run("put and get", func(t *testing.T) {
				require.NoError(t, store.Put("key1", []byte("value1")))
				value, err := store.Get("key1")
				require.NoError(t, err)
				assert.Equal(t, []byte("value1"), value)
			})

			t.Run("overwrite", func(t *testing.T) {
				require.NoError(t, store.Put("key1", []byte("value2")))
				value, err := store.Get("key1")
				require.NoError(t, err)
				assert.Equal(t, []byte("value2"), value)
			})

			t.Run("empty value", func(t *testing.T) {
				require.NoError(t, store.Put("empty", nil))
				value, err := store.Get("empty")
				require.NoError(t, err)
				assert.NotNil(t, value)
				assert.Len(t, value, 0)
			})

			t.Run("check delete", func(t *testing.T) {
				assert.NoError(t, store.CheckDelete("key1"))
				assert.ErrorIs(t, store.CheckDelete("ghost"), ErrKeyNotFound)
			})

			t.Run("delete", func(t *testing.T) {
				require.NoError(t, store.Delete("key1"))
				_, err := store.Get("key1")
				assert.ErrorIs(t, err, ErrKeyNotFound)
				assert.ErrorIs(t, store.Delete("key1"), ErrKeyNotFound)
			})

			t.Run("stats", func(t *testing.T) {
				require.NoError(t, store.Put("a", []byte("12")))
				require.NoError(t, store.Put("b", []byte("345")))

				stats := store.Stats()
				assert.Equal(t, 3, stats.Keys)
				assert.Equal(t, 5, stats.Bytes)
			})
		})
	}
}

// TestCheckPut tests the feasibility limits
func TestCheckPut(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value []byte
		want  error
	}{
		{name: "ok", key: "k", value: []byte("v")},
		{name: "empty key", key: "", value: []byte("v"), want: ErrKeyLen},
		{name: "key at limit", key: strings.Repeat("k", MaxKeyLen), value: nil},
		{name: "key too long", key: strings.Repeat("k", MaxKeyLen+1), want: ErrKeyLen},
		{name: "value at limit", key: "k", value: make([]byte, MaxValueLen)},
		{name: "value too long", key: "k", value: make([]byte, MaxValueLen+1), want: ErrValueLen},
	}

	for name, store := range backends(t) {
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				err := store.CheckPut(tt.key, tt.value)
				if tt.want == nil {
					assert.NoError(t, err)
				} else {
					assert.ErrorIs(t, err, tt.want)
					assert.ErrorIs(t, store.Put(tt.key, tt.value), tt.want)
				}
			})
		}
	}
}

// TestMemoryStoreCopies verifies stored values are isolated from callers
func TestMemoryStoreCopies(t *testing.T) {
	store := NewMemoryStore()
	in := []byte("value")
	require.NoError(t, store.Put("k", in))
	in[0] = 'X'

	out, err := store.Get("k")
	require.NoError(t, err)
	out[1] = 'Y'

	again, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), again)
}

// TestBadgerStoreReopen verifies values survive a close and reopen
func TestBadgerStoreReopen(t *testing.T) {
	dir := t.TempDir()
	b, err := NewBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, b.Put("durable", []byte("yes")))
	require.NoError(t, b.Close())

	b, err = NewBadgerStore(dir)
	require.NoError(t, err)
	defer b.Close()

	value, err := b.Get("durable")
	require.NoError(t, err)
	assert.Equal(t, []byte("yes"), value)
}

// TestMemoryStoreConcurrency exercises concurrent readers and writers
func TestMemoryStoreConcurrency(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("g%d-k%d", g, i)
				assert.NoError(t, store.Put(key, []byte(key)))
				v, err := store.Get(key)
				assert.NoError(t, err)
				assert.Equal(t, key, string(v))
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 1000, store.Stats().Keys)
}
