// Command coordinator runs the ringkv coordinator: it accepts participant
// registrations and client requests on its TCP listener and, optionally,
// serves the HTTP gateway.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dreamware/ringkv/internal/cluster"
	"github.com/dreamware/ringkv/internal/config"
	"github.com/dreamware/ringkv/internal/coordinator"
	"github.com/dreamware/ringkv/internal/gateway"
	"github.com/dreamware/ringkv/internal/server"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

// newCoordinator builds the coordinator and, when enabled, a health monitor
// that also observes transactions. The monitor is not started.
func newCoordinator(cfg config.CoordinatorConfig) (*coordinator.Coordinator, *coordinator.HealthMonitor, error) {
	client := cluster.NewClient(cfg.Timeout)
	coord, err := coordinator.New(coordinator.Config{
		Capacity:          cfg.SlaveCapacity,
		Redundancy:        cfg.Redundancy,
		CacheSets:         cfg.CacheSets,
		CacheElems:        cfg.CacheElems,
		Phase2MaxAttempts: cfg.Phase2MaxAttempts,
		Phase2Backoff:     cfg.Phase2Backoff,
	}, client)
	if err != nil {
		return nil, nil, err
	}
	if cfg.HealthInterval <= 0 {
		return coord, nil, nil
	}

	monitor := coordinator.NewHealthMonitor(cfg.HealthInterval, client)
	monitor.SetOnUnhealthy(func(s coordinator.Slave) {
		log.WithField("slave", s.Addr()).Warn("slave unhealthy, transactions touching it will abort")
	})
	coord.SetHealthMonitor(monitor)
	coord.SetObserver(monitor)
	return coord, monitor, nil
}

func main() {
	cfg, err := config.Load(os.Getenv(config.EnvFile))
	if err != nil {
		logFatal("config: %v", err)
	}
	cfg.SetupLogging()

	coord, monitor, err := newCoordinator(cfg.Coordinator)
	if err != nil {
		logFatal("start coordinator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if monitor != nil {
		go monitor.Start(ctx, coord.Slaves)
	}

	srv := server.New(cfg.Coordinator.Listen, coord, cfg.Coordinator.Workers)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, server.ErrServerClosed) {
			logFatal("listen: %v", err)
		}
	}()

	var httpSrv *http.Server
	if cfg.Coordinator.HTTPListen != "" {
		gin.SetMode(gin.ReleaseMode)
		httpSrv = &http.Server{
			Addr:              cfg.Coordinator.HTTPListen,
			Handler:           gateway.NewRouter(coord),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.WithField("listen", httpSrv.Addr).Info("gateway listening")
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logFatal("gateway: %v", err)
			}
		}()
	}

	log.WithFields(log.Fields{
		"listen":     cfg.Coordinator.Listen,
		"capacity":   cfg.Coordinator.SlaveCapacity,
		"redundancy": cfg.Coordinator.Redundancy,
	}).Info("coordinator waiting for slaves")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if httpSrv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	if err := srv.Stop(); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if monitor != nil {
		monitor.Stop()
	}
	log.Info("coordinator stopped")
}
