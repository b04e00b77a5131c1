package main

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ringkv/internal/cluster"
	"github.com/dreamware/ringkv/internal/config"
	"github.com/dreamware/ringkv/internal/participant"
)

// flakyRegistrar fails a fixed number of times before succeeding
type flakyRegistrar struct {
	failures int
	calls    int
	addr     string
}

func (f *flakyRegistrar) Register(_ context.Context, addr string) error {
	f.calls++
	f.addr = addr
	if f.calls <= f.failures {
		return errors.Wrap(cluster.ErrUnreachable, "dial")
	}
	return nil
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		attempts int
		wantErr  bool
		calls    int
	}{
		{name: "first try", failures: 0, attempts: 3, calls: 1},
		{name: "after retries", failures: 2, attempts: 3, calls: 3},
		{name: "gives up", failures: 5, attempts: 3, wantErr: true, calls: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &flakyRegistrar{failures: tt.failures}
			err := register(context.Background(), r, "coord:8888", tt.attempts, time.Millisecond)
			if tt.wantErr {
				assert.ErrorIs(t, err, cluster.ErrUnreachable)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.calls, r.calls)
			assert.Equal(t, "coord:8888", r.addr)
		})
	}
}

func TestRegisterCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &flakyRegistrar{failures: 10}
	err := register(ctx, r, "coord:8888", 10, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, r.calls)
}

// TestNewNodeRecovers commits a write, restarts the node on the same data
// directory and expects the participant to come back READY with the value
func TestNewNodeRecovers(t *testing.T) {
	cfg := config.Default().Node
	cfg.DataDir = t.TempDir()

	n, err := newNode(cfg)
	require.NoError(t, err)
	assert.Equal(t, participant.Init, n.participant.State())

	resp := n.participant.HandleMessage(&cluster.Message{Type: cluster.PutReq, Key: "k", Value: "v"})
	require.Equal(t, cluster.VoteCommit, resp.Type)
	require.Equal(t, cluster.Ack, n.participant.HandleMessage(&cluster.Message{Type: cluster.Commit, Key: "k"}).Type)
	n.close()

	n, err = newNode(cfg)
	require.NoError(t, err)
	defer n.close()

	assert.Equal(t, participant.Ready, n.participant.State())
	assert.Equal(t, 0, n.log.Len())
	value, err := n.store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(value))
}

func TestNewNodeBadCache(t *testing.T) {
	cfg := config.Default().Node
	cfg.DataDir = t.TempDir()
	cfg.CacheSets = 0

	_, err := newNode(cfg)
	assert.Error(t, err)
}
