package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ringkv/internal/cluster"
	"github.com/dreamware/ringkv/internal/config"
	"github.com/dreamware/ringkv/internal/coordinator"
)

func TestNewCoordinator(t *testing.T) {
	cfg := config.Default().Coordinator

	coord, monitor, err := newCoordinator(cfg)
	require.NoError(t, err)
	require.NotNil(t, monitor)
	defer monitor.Stop()

	assert.Equal(t, coordinator.Init, coord.State())
	for i, port := range []string{"16001", "16002"} {
		resp := coord.HandleMessage(context.Background(), &cluster.Message{Type: cluster.Register, Key: port, Value: "localhost"})
		assert.Equal(t, cluster.MsgSuccess, resp.Message, "slave %d", i)
	}
	assert.Equal(t, coordinator.Ready, coord.State())

	// Unreachable replicas feed the monitor
	monitor.OnUnreachable(coordinator.NewSlave("localhost", "16001"))
	info := coord.Info()
	assert.Contains(t, info, "{localhost, 16001} unknown\n")
}

func TestNewCoordinatorWithoutHealth(t *testing.T) {
	cfg := config.Default().Coordinator
	cfg.HealthInterval = 0

	coord, monitor, err := newCoordinator(cfg)
	require.NoError(t, err)
	assert.Nil(t, monitor)
	assert.NotContains(t, coord.Info(), "Health:")
}

func TestNewCoordinatorBadConfig(t *testing.T) {
	cfg := config.Default().Coordinator
	cfg.SlaveCapacity = 0

	_, _, err := newCoordinator(cfg)
	assert.Error(t, err)
}
