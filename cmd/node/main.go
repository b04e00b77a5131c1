// Command node runs a ringkv participant: it opens its Badger store and
// transaction log, replays the log, serves wire requests and registers with
// the coordinator.
//
// Configuration comes from the YAML file named by $RINGKV_CONFIG and
// RINGKV_* environment overrides (see internal/config).
//
// Exit codes:
//   - 0: Normal shutdown via signal
//   - 1: Bad configuration, unreadable data directory, or failed registration
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dreamware/ringkv/internal/cache"
	"github.com/dreamware/ringkv/internal/cluster"
	"github.com/dreamware/ringkv/internal/config"
	"github.com/dreamware/ringkv/internal/participant"
	"github.com/dreamware/ringkv/internal/server"
	"github.com/dreamware/ringkv/internal/storage"
	"github.com/dreamware/ringkv/internal/wal"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

// node bundles a participant with the resources it owns
type node struct {
	participant *participant.Participant
	store       storage.Store
	log         wal.TransactionLog
}

// newNode opens storage under cfg.DataDir and rebuilds the participant from
// its transaction log
func newNode(cfg config.NodeConfig) (*node, error) {
	store, err := storage.NewBadgerStore(filepath.Join(cfg.DataDir, "store"))
	if err != nil {
		return nil, err
	}
	tlog, err := wal.Open(cfg.DataDir)
	if err != nil {
		store.Close()
		return nil, err
	}
	c, err := cache.New(cfg.CacheSets, cfg.CacheElems)
	if err != nil {
		tlog.Close()
		store.Close()
		return nil, errors.Wrap(err, "create cache")
	}

	p := participant.New(cfg.Host, cfg.Port, store, tlog, c)
	p.SetClient(cluster.NewClient(cfg.Timeout))
	if err := p.Rebuild(); err != nil {
		tlog.Close()
		store.Close()
		return nil, err
	}
	return &node{participant: p, store: store, log: tlog}, nil
}

func (n *node) close() {
	if err := n.log.Close(); err != nil {
		log.WithError(err).Warn("close transaction log")
	}
	if err := n.store.Close(); err != nil {
		log.WithError(err).Warn("close store")
	}
}

// registrar is the part of a participant register needs
type registrar interface {
	Register(ctx context.Context, addr string) error
}

// register announces the node to the coordinator, retrying to ride out
// coordinator startup.
//
// Retry strategy:
//   - attempts tries at most
//   - backoff between tries
//   - the last error is returned when every try fails
func register(ctx context.Context, r registrar, coord string, attempts int, backoff time.Duration) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		lastErr = r.Register(ctx, coord)
		if lastErr == nil {
			return nil
		}
		log.WithError(lastErr).WithField("attempt", i+1).Warn("register retry")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return errors.Wrapf(lastErr, "register after %d attempts", attempts)
}

func main() {
	cfg, err := config.Load(os.Getenv(config.EnvFile))
	if err != nil {
		logFatal("config: %v", err)
	}
	cfg.SetupLogging()

	n, err := newNode(cfg.Node)
	if err != nil {
		logFatal("start node: %v", err)
	}
	defer n.close()

	listen := net.JoinHostPort("", cfg.Node.Port)
	srv := server.New(listen, n.participant, cfg.Node.Workers)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, server.ErrServerClosed) {
			logFatal("listen: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := register(ctx, n.participant, cfg.Node.Coordinator, cfg.Node.RegisterAttempts, cfg.Node.RegisterBackoff); err != nil {
		logFatal("failed to register with coordinator: %v", err)
	}
	log.WithFields(log.Fields{
		"host":  cfg.Node.Host,
		"port":  cfg.Node.Port,
		"state": n.participant.State(),
	}).Info("node ready")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if err := srv.Stop(); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	log.Info("node stopped")
}
