package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withEnv replaces the environment lookup for one test
func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	orig := getenv
	getenv = func(k string) string { return env[k] }
	t.Cleanup(func() { getenv = orig })
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ringkv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	withEnv(t, nil)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Zero(t, cfg.Coordinator.Phase2MaxAttempts, "phase 2 retries until ACK by default")
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
log_level: debug
coordinator:
  slave_capacity: 3
  redundancy: 2
  phase2_backoff: 250ms
  phase2_max_attempts: 5
node:
  port: "17000"
  data_dir: /var/lib/ringkv
`)
	withEnv(t, map[string]string{
		"RINGKV_REDUNDANCY": "3",
		"RINGKV_NODE_HOST":  "node-a",
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.Coordinator.SlaveCapacity)
	assert.Equal(t, 3, cfg.Coordinator.Redundancy, "env wins over file")
	assert.Equal(t, 250*time.Millisecond, cfg.Coordinator.Phase2Backoff)
	assert.Equal(t, 5, cfg.Coordinator.Phase2MaxAttempts)
	assert.Equal(t, "node-a", cfg.Node.Host)
	assert.Equal(t, "17000", cfg.Node.Port)
	assert.Equal(t, "/var/lib/ringkv", cfg.Node.DataDir)

	// Untouched fields keep their defaults
	assert.Equal(t, Default().Node.Coordinator, cfg.Node.Coordinator)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "bad yaml", file: "coordinator: [unclosed"},
		{name: "bad level", file: "log_level: loud"},
		{name: "zero capacity", file: "coordinator:\n  slave_capacity: 0"},
		{name: "tiny cache", file: "node:\n  cache_elems: 1"},
		{name: "negative attempts", file: "coordinator:\n  phase2_max_attempts: -1"},
		{name: "bad env number", env: map[string]string{"RINGKV_SLAVE_CAPACITY": "two"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.env)
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		withEnv(t, nil)
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestSetupLogging(t *testing.T) {
	orig := log.GetLevel()
	defer log.SetLevel(orig)

	cfg := Default()
	cfg.LogLevel = "warn"
	cfg.SetupLogging()
	assert.Equal(t, log.WarnLevel, log.GetLevel())
}
