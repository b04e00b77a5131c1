package server

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ringkv/internal/cache"
	"github.com/dreamware/ringkv/internal/cluster"
	"github.com/dreamware/ringkv/internal/coordinator"
	"github.com/dreamware/ringkv/internal/participant"
	"github.com/dreamware/ringkv/internal/storage"
	"github.com/dreamware/ringkv/internal/wal"
)

// start serves h on a loopback port and stops it when the test ends
func start(t *testing.T, h Handler, workers int) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New("127.0.0.1:0", h, workers)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	t.Cleanup(func() {
		require.NoError(t, srv.Stop())
		assert.ErrorIs(t, <-done, ErrServerClosed)
	})

	require.Eventually(t, func() bool { return srv.Addr() == ln.Addr().String() }, time.Second, 5*time.Millisecond)
	return srv
}

func TestServerEcho(t *testing.T) {
	var served atomic.Int32
	echo := HandlerFunc(func(conn net.Conn) {
		served.Add(1)
		req, err := cluster.Receive(conn)
		if err != nil {
			return
		}
		_ = cluster.Send(conn, &cluster.Message{Type: cluster.GetResp, Key: req.Key, Value: req.Key})
	})
	srv := start(t, echo, 2)

	client := cluster.NewClient(time.Second)
	for i := 0; i < 10; i++ {
		resp, err := client.Exchange(context.Background(), srv.Addr(), &cluster.Message{Type: cluster.GetReq, Key: "k"})
		require.NoError(t, err)
		assert.Equal(t, "k", resp.Value)
	}
	assert.Equal(t, int32(10), served.Load())
}

func TestServerStop(t *testing.T) {
	srv := New("127.0.0.1:0", HandlerFunc(func(net.Conn) {}), 0)
	assert.Equal(t, DefaultWorkers, srv.workers)
	assert.Equal(t, "127.0.0.1:0", srv.Addr())

	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop(), "idempotent")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, srv.Serve(ln), ErrServerClosed)
}

// TestClusterOverTCP runs a coordinator and two participants on loopback
func TestClusterOverTCP(t *testing.T) {
	client := cluster.NewClient(time.Second)

	coord, err := coordinator.New(coordinator.Config{
		Capacity:      2,
		Redundancy:    2,
		CacheSets:     2,
		CacheElems:    4,
		Phase2Backoff: 10 * time.Millisecond,
	}, client)
	require.NoError(t, err)
	coordSrv := start(t, coord, 4)

	stores := make([]storage.Store, 2)
	for i := range stores {
		stores[i] = storage.NewMemoryStore()
		tlog, err := wal.Open(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { _ = tlog.Close() })
		c, err := cache.New(2, 4)
		require.NoError(t, err)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		host, port, err := net.SplitHostPort(ln.Addr().String())
		require.NoError(t, err)
		ln.Close()

		p := participant.New(host, port, stores[i], tlog, c)
		srv := New(net.JoinHostPort(host, port), p, 2)
		go func() { _ = srv.ListenAndServe() }()
		t.Cleanup(func() { _ = srv.Stop() })

		require.NoError(t, p.Register(context.Background(), coordSrv.Addr()))
	}
	require.Equal(t, coordinator.Ready, coord.State())

	do := func(req *cluster.Message) *cluster.Message {
		resp, err := client.Exchange(context.Background(), coordSrv.Addr(), req)
		require.NoError(t, err)
		return resp
	}

	require.Eventually(t, func() bool {
		return do(&cluster.Message{Type: cluster.PutReq, Key: "city", Value: "Berlin"}).Message == cluster.MsgSuccess
	}, 2*time.Second, 20*time.Millisecond)

	for _, st := range stores {
		v, err := st.Get("city")
		require.NoError(t, err)
		assert.Equal(t, "Berlin", string(v))
	}

	resp := do(&cluster.Message{Type: cluster.GetReq, Key: "city"})
	assert.Equal(t, "Berlin", resp.Value)

	resp = do(&cluster.Message{Type: cluster.DelReq, Key: "city"})
	assert.Equal(t, cluster.MsgSuccess, resp.Message)

	resp = do(&cluster.Message{Type: cluster.GetReq, Key: "city"})
	assert.Equal(t, cluster.ErrMsgNoKey, resp.Message)

	resp = do(&cluster.Message{Type: cluster.Info})
	assert.Contains(t, resp.Message, "Slaves:\n")
}
