package coordinator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash64(t *testing.T) {
	seed := int64(1125899906842597)
	assert.Equal(t, seed, Hash64(""))
	assert.Equal(t, seed*31+'a', Hash64("a"))
	assert.Equal(t, (seed*31+'a')*31+'b', Hash64("ab"))
	assert.Equal(t, Hash64("16000:localhost"), SlaveID("localhost", "16000"))
	assert.NotEqual(t, SlaveID("localhost", "16000"), SlaveID("16000", "localhost"))
}

func TestRingRouting(t *testing.T) {
	r := NewRing()
	for _, id := range []int64{90, 10, 50} {
		require.True(t, r.Add(Slave{ID: id, Host: "h", Port: "p"}))
	}
	assert.False(t, r.Add(Slave{ID: 50}), "duplicate ID")
	assert.Equal(t, 3, r.Len())

	tests := []struct {
		hash int64
		want int64
	}{
		{hash: 60, want: 90},
		{hash: 50, want: 90},
		{hash: 49, want: 50},
		{hash: 5, want: 10},
		{hash: 90, want: 10},
		{hash: 95, want: 10},
		{hash: math.MinInt64, want: 10},
		{hash: math.MaxInt64, want: 10},
	}
	for _, tt := range tests {
		s, ok := r.PrimaryForHash(tt.hash)
		require.True(t, ok)
		assert.Equal(t, tt.want, s.ID, "hash %d", tt.hash)
	}

	next, ok := r.Successor(Slave{ID: 90})
	require.True(t, ok)
	assert.Equal(t, int64(10), next.ID)

	next, ok = r.Successor(Slave{ID: 10})
	require.True(t, ok)
	assert.Equal(t, int64(50), next.ID)

	ids := []int64{}
	for _, s := range r.Slaves() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []int64{10, 50, 90}, ids)
}

func TestRingReplicas(t *testing.T) {
	key := "user:42"
	h := Hash64(key)
	require.True(t, h > math.MinInt64+100 && h < math.MaxInt64-100)

	// Ring order: h-50, h+10, h+40; the key falls between the first two
	r := NewRing()
	for _, id := range []int64{h + 40, h - 50, h + 10} {
		r.Add(Slave{ID: id})
	}

	primary, ok := r.Primary(key)
	require.True(t, ok)
	assert.Equal(t, h+10, primary.ID)

	got := func(n int) []int64 {
		ids := []int64{}
		for _, s := range r.Replicas(key, n) {
			ids = append(ids, s.ID)
		}
		return ids
	}
	assert.Equal(t, []int64{h + 10}, got(1))
	assert.Equal(t, []int64{h + 10, h + 40}, got(2))
	assert.Equal(t, []int64{h + 10, h + 40, h - 50}, got(3))
	assert.Equal(t, []int64{h + 10, h + 40, h - 50}, got(5), "never more than the ring holds")
}

func TestRingEmpty(t *testing.T) {
	r := NewRing()
	_, ok := r.Primary("key")
	assert.False(t, ok)
	assert.Empty(t, r.Replicas("key", 2))
	assert.Empty(t, r.Slaves())

	_, ok = r.Get(1)
	assert.False(t, ok)
}

func TestSlave(t *testing.T) {
	s := NewSlave("localhost", "16000")
	assert.Equal(t, SlaveID("localhost", "16000"), s.ID)
	assert.Equal(t, "localhost:16000", s.Addr())

	r := NewRing()
	r.Add(s)
	got, ok := r.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, s, got)
}
