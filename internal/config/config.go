// Package config loads ringkv process configuration: built-in defaults,
// then an optional YAML file, then environment variables.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvFile names the environment variable holding the YAML config path
const EnvFile = "RINGKV_CONFIG"

// Config is the root of the configuration file
type Config struct {
	LogLevel    string            `yaml:"log_level"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Node        NodeConfig        `yaml:"node"`
}

// CoordinatorConfig configures cmd/coordinator
type CoordinatorConfig struct {
	Listen            string        `yaml:"listen"`      // TCP address for wire requests
	HTTPListen        string        `yaml:"http_listen"` // gin gateway address, empty disables it
	SlaveCapacity     int           `yaml:"slave_capacity"`
	Redundancy        int           `yaml:"redundancy"`
	CacheSets         int           `yaml:"cache_sets"`
	CacheElems        int           `yaml:"cache_elems"`
	Workers           int           `yaml:"workers"`
	Timeout           time.Duration `yaml:"timeout"` // Per replica exchange
	Phase2MaxAttempts int           `yaml:"phase2_max_attempts"`
	Phase2Backoff     time.Duration `yaml:"phase2_backoff"`
	HealthInterval    time.Duration `yaml:"health_interval"` // 0 disables the monitor
}

// NodeConfig configures cmd/node
type NodeConfig struct {
	Host             string        `yaml:"host"` // Name registered with the coordinator
	Port             string        `yaml:"port"`
	Coordinator      string        `yaml:"coordinator"` // Coordinator host:port
	DataDir          string        `yaml:"data_dir"`    // Badger files and the transaction log
	CacheSets        int           `yaml:"cache_sets"`
	CacheElems       int           `yaml:"cache_elems"`
	Workers          int           `yaml:"workers"`
	Timeout          time.Duration `yaml:"timeout"`
	RegisterAttempts int           `yaml:"register_attempts"`
	RegisterBackoff  time.Duration `yaml:"register_backoff"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Coordinator: CoordinatorConfig{
			Listen:         ":8888",
			HTTPListen:     ":8080",
			SlaveCapacity:  2,
			Redundancy:     2,
			CacheSets:      4,
			CacheElems:     8,
			Workers:        8,
			Timeout:        2 * time.Second,
			Phase2Backoff:  100 * time.Millisecond,
			HealthInterval: 5 * time.Second,
		},
		Node: NodeConfig{
			Host:             "localhost",
			Port:             "16000",
			Coordinator:      "localhost:8888",
			DataDir:          "data",
			CacheSets:        4,
			CacheElems:       8,
			Workers:          8,
			Timeout:          2 * time.Second,
			RegisterAttempts: 10,
			RegisterBackoff:  400 * time.Millisecond,
		},
	}
}

// getenv is a variable to allow tests to supply an environment
var getenv = os.Getenv

// Load builds the configuration. A non-empty path must name a readable YAML
// file; its values override the defaults and environment variables
// override both.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from RINGKV_* variables
func (c *Config) applyEnv() error {
	str := func(k string, dst *string) {
		if v := getenv(k); v != "" {
			*dst = v
		}
	}
	num := func(k string, dst *int) error {
		v := getenv(k)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "env %s", k)
		}
		*dst = n
		return nil
	}

	str("RINGKV_LOG_LEVEL", &c.LogLevel)

	str("RINGKV_COORDINATOR_LISTEN", &c.Coordinator.Listen)
	str("RINGKV_COORDINATOR_HTTP", &c.Coordinator.HTTPListen)
	if err := num("RINGKV_SLAVE_CAPACITY", &c.Coordinator.SlaveCapacity); err != nil {
		return err
	}
	if err := num("RINGKV_REDUNDANCY", &c.Coordinator.Redundancy); err != nil {
		return err
	}

	str("RINGKV_NODE_HOST", &c.Node.Host)
	str("RINGKV_NODE_PORT", &c.Node.Port)
	str("RINGKV_COORDINATOR_ADDR", &c.Node.Coordinator)
	str("RINGKV_DATA_DIR", &c.Node.DataDir)
	return nil
}

// Validate rejects configurations the processes cannot start with
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	if c.Coordinator.SlaveCapacity < 1 {
		return errors.New("coordinator.slave_capacity must be positive")
	}
	if c.Coordinator.Redundancy < 1 {
		return errors.New("coordinator.redundancy must be positive")
	}
	if c.Coordinator.CacheSets < 1 || c.Node.CacheSets < 1 {
		return errors.New("cache_sets must be positive")
	}
	if c.Coordinator.CacheElems < 2 || c.Node.CacheElems < 2 {
		return errors.New("cache_elems must be at least 2")
	}
	if c.Coordinator.Phase2MaxAttempts < 0 {
		return errors.New("coordinator.phase2_max_attempts must not be negative")
	}
	return nil
}

// SetupLogging applies the configured level to the standard logrus logger
func (c *Config) SetupLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
