package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dreamware/ringkv/internal/cluster"
)

// Health status values
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// NodeHealth tracks the health status of a single slave.
// Thread-safe: Protected by HealthMonitor's mutex when accessed.
type NodeHealth struct {
	LastCheck        time.Time // Timestamp of the last health check attempt
	LastHealthy      time.Time // Timestamp of the last successful health check
	Addr             string    // Slave address, host:port
	Status           string    // Current status: "healthy", "unhealthy", "unknown"
	ConsecutiveFails int       // Number of consecutive failed health checks
}

// HealthMonitor periodically checks every slave on the ring with an INFO
// request and tracks consecutive failures. It also implements Observer so
// that replicas found unreachable during a transaction count as failed
// checks.
// Thread-safe: All methods are safe for concurrent access.
type HealthMonitor struct {
	nodes       map[string]*NodeHealth  // Current health status per slave address
	exchanger   Exchanger               // Transport for INFO checks
	checkFunc   func(addr string) error // Function to perform health check
	onUnhealthy func(s Slave)           // Callback when a slave becomes unhealthy
	ctx         context.Context         // Context for cancellation
	cancel      context.CancelFunc      // Cancel function for shutdown
	logger      *log.Entry
	interval    time.Duration  // How often to check slave health
	timeout     time.Duration  // Bound on a single check
	mu          sync.RWMutex   // Protects nodes map
	wg          sync.WaitGroup // Wait group for graceful shutdown
	maxFailures int            // Failures before marking unhealthy
}

// NewHealthMonitor creates a monitor that checks every interval through ex.
// Slaves are marked unhealthy after 3 consecutive failures.
//
// Example:
//
//	monitor := NewHealthMonitor(5*time.Second, cluster.NewClient(time.Second))
//	go monitor.Start(ctx, coord.Slaves)
func NewHealthMonitor(interval time.Duration, ex Exchanger) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &HealthMonitor{
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: 3,
		nodes:       make(map[string]*NodeHealth),
		exchanger:   ex,
		ctx:         ctx,
		cancel:      cancel,
		logger:      log.WithField("component", "health"),
	}
}

// SetOnUnhealthy sets the callback invoked when a slave becomes unhealthy
func (h *HealthMonitor) SetOnUnhealthy(callback func(s Slave)) {
	h.onUnhealthy = callback
}

// SetCheckFunction overrides the INFO check
func (h *HealthMonitor) SetCheckFunction(checkFunc func(addr string) error) {
	h.checkFunc = checkFunc
}

// Start checks every slave returned by provider once immediately and then
// every interval. It blocks until ctx or the monitor is canceled.
//
// Example:
//
//	go monitor.Start(ctx, coord.Slaves)
func (h *HealthMonitor) Start(ctx context.Context, provider func() []Slave) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}
	if h.checkFunc == nil {
		h.checkFunc = h.infoCheck
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.WithField("interval", h.interval).Info("health monitor started")

	h.checkAll(provider())

	for {
		select {
		case <-ticker.C:
			h.checkAll(provider())
		case <-ctx.Done():
			h.logger.Info("health monitor stopping due to context cancellation")
			return
		case <-h.ctx.Done():
			h.logger.Info("health monitor stopping due to internal cancellation")
			return
		}
	}
}

// Stop cancels the monitoring goroutine and waits for it
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

// checkAll checks each slave and forgets slaves no longer provided
func (h *HealthMonitor) checkAll(slaves []Slave) {
	current := make(map[string]bool, len(slaves))
	for _, s := range slaves {
		current[s.Addr()] = true
		h.record(s, h.checkFunc(s.Addr()))
	}

	h.mu.Lock()
	for addr := range h.nodes {
		if !current[addr] {
			delete(h.nodes, addr)
			h.logger.WithField("slave", addr).Info("removed from health monitoring")
		}
	}
	h.mu.Unlock()
}

// record applies one check result to the slave's health
func (h *HealthMonitor) record(s Slave, err error) {
	addr := s.Addr()

	h.mu.Lock()
	defer h.mu.Unlock()

	health, exists := h.nodes[addr]
	if !exists {
		health = &NodeHealth{
			Addr:        addr,
			Status:      StatusUnknown,
			LastHealthy: time.Now(),
		}
		h.nodes[addr] = health
	}
	health.LastCheck = time.Now()

	if err == nil {
		if health.Status == StatusUnhealthy {
			h.logger.WithField("slave", addr).Info("slave recovered")
		}
		health.Status = StatusHealthy
		health.ConsecutiveFails = 0
		health.LastHealthy = time.Now()
		return
	}

	health.ConsecutiveFails++
	h.logger.WithFields(log.Fields{
		"slave":   addr,
		"attempt": health.ConsecutiveFails,
		"max":     h.maxFailures,
	}).WithError(err).Debug("health check failed")

	if health.ConsecutiveFails >= h.maxFailures && health.Status != StatusUnhealthy {
		health.Status = StatusUnhealthy
		h.logger.WithField("slave", addr).Warn("slave marked unhealthy")
		if h.onUnhealthy != nil {
			// Call callback without holding the lock
			go h.onUnhealthy(s)
		}
	}
}

// infoCheck sends INFO and expects an INFO reply
func (h *HealthMonitor) infoCheck(addr string) error {
	ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
	defer cancel()

	resp, err := h.exchanger.Exchange(ctx, addr, &cluster.Message{Type: cluster.Info})
	if err != nil {
		return err
	}
	if resp.Type != cluster.Info {
		return errors.Errorf("unexpected %s reply to INFO", resp.Type)
	}
	return nil
}

// OnUnreachable counts a failed contact during a transaction
func (h *HealthMonitor) OnUnreachable(s Slave) {
	h.record(s, cluster.ErrUnreachable)
}

// OnPhaseTransition is a no-op
func (h *HealthMonitor) OnPhaseTransition() {}

// GetNodeHealth returns a copy of the health record for addr, or nil
func (h *HealthMonitor) GetNodeHealth(addr string) *NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[addr]
	if !exists {
		return nil
	}
	cp := *health
	return &cp
}

// GetAllNodeHealth returns copies of every health record keyed by address
func (h *HealthMonitor) GetAllNodeHealth() map[string]*NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]*NodeHealth, len(h.nodes))
	for addr, health := range h.nodes {
		cp := *health
		result[addr] = &cp
	}
	return result
}

// IsHealthy reports whether addr passed its most recent checks
func (h *HealthMonitor) IsHealthy(addr string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[addr]
	return exists && health.Status == StatusHealthy
}
