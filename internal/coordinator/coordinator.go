package coordinator

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dreamware/ringkv/internal/cache"
	"github.com/dreamware/ringkv/internal/cluster"
)

// State is the coordinator's membership state
type State int

const (
	Init  State = iota // Ring not yet full, client requests rejected
	Ready              // Ring full, serving clients
)

// Exchanger sends one request to a replica and returns its response.
// *cluster.Client is the production implementation.
type Exchanger interface {
	Exchange(ctx context.Context, addr string, req *cluster.Message) (*cluster.Message, error)
}

// Observer is notified of events inside a transaction. Tests use it to
// inject failures between the phases.
type Observer interface {
	// OnUnreachable is called when a replica cannot be contacted
	OnUnreachable(s Slave)

	// OnPhaseTransition is called after phase 1, before any decision is sent
	OnPhaseTransition()
}

// Config holds the coordinator's tunables
type Config struct {
	Capacity          int           // Number of slaves the ring needs before serving
	Redundancy        int           // Replicas per key, clamped to Capacity
	CacheSets         int           // Shards in the coordinator cache
	CacheElems        int           // Entries per cache shard
	Phase2MaxAttempts int           // Decision attempts per replica, 0 retries until ACK
	Phase2Backoff     time.Duration // Pause between decision attempts
}

// Coordinator owns the ring and runs client requests against it.
//
// Concurrency:
//   - ringMu guards the ring and the membership state
//   - the cache's per-key lock serializes GET misses and whole
//     transactions on keys sharing a cache shard
type Coordinator struct {
	cfg       Config
	exchanger Exchanger
	observer  Observer
	health    *HealthMonitor
	cache     *cache.Cache
	logger    *log.Entry

	ringMu sync.RWMutex
	ring   *Ring
	state  State
}

// New creates a coordinator in the INIT state
func New(cfg Config, ex Exchanger) (*Coordinator, error) {
	if cfg.Capacity < 1 {
		return nil, errors.Errorf("slave capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.Redundancy < 1 {
		cfg.Redundancy = 1
	}
	if cfg.Redundancy > cfg.Capacity {
		cfg.Redundancy = cfg.Capacity
	}
	c, err := cache.New(cfg.CacheSets, cfg.CacheElems)
	if err != nil {
		return nil, errors.Wrap(err, "create coordinator cache")
	}
	return &Coordinator{
		cfg:       cfg,
		exchanger: ex,
		observer:  logObserver{},
		cache:     c,
		ring:      NewRing(),
		logger:    log.WithField("component", "coordinator"),
	}, nil
}

// SetObserver replaces the transaction observer
func (c *Coordinator) SetObserver(o Observer) {
	c.observer = o
}

// SetHealthMonitor attaches a monitor whose status is reported by INFO
func (c *Coordinator) SetHealthMonitor(h *HealthMonitor) {
	c.health = h
}

// State returns the membership state
func (c *Coordinator) State() State {
	c.ringMu.RLock()
	defer c.ringMu.RUnlock()
	return c.state
}

// Slaves returns the registered slaves in ring order
func (c *Coordinator) Slaves() []Slave {
	c.ringMu.RLock()
	defer c.ringMu.RUnlock()
	return c.ring.Slaves()
}

// Register adds a slave to the ring. Registering a slave already on the ring
// succeeds without change; registering into a full ring fails with
// cluster.ErrCapacity.
func (c *Coordinator) Register(host, port string) error {
	if host == "" || port == "" {
		return cluster.ErrInvalidRequest
	}
	s := NewSlave(host, port)

	c.ringMu.Lock()
	defer c.ringMu.Unlock()

	if _, ok := c.ring.Get(s.ID); ok {
		return nil
	}
	if c.ring.Len() >= c.cfg.Capacity {
		return cluster.ErrCapacity
	}
	c.ring.Add(s)
	c.logger.WithFields(log.Fields{"slave": s.Addr(), "id": s.ID}).Info("slave registered")

	if c.ring.Len() == c.cfg.Capacity {
		c.state = Ready
		c.logger.WithField("slaves", c.ring.Len()).Info("ring full, coordinator ready")
	}
	return nil
}

// Handle serves one client or participant connection
func (c *Coordinator) Handle(conn net.Conn) {
	req, err := cluster.Receive(conn)
	if err != nil {
		c.logger.WithError(err).Debug("bad request")
		_ = cluster.Send(conn, cluster.Response(cluster.ErrInvalidRequest))
		return
	}
	if err := cluster.Send(conn, c.HandleMessage(context.Background(), req)); err != nil {
		c.logger.WithError(err).Warn("send response failed")
	}
}

// HandleMessage dispatches req and returns the response for the client
func (c *Coordinator) HandleMessage(ctx context.Context, req *cluster.Message) *cluster.Message {
	switch req.Type {
	case cluster.Register:
		return cluster.Response(c.Register(req.Value, req.Key))
	case cluster.Info:
		return &cluster.Message{Type: cluster.Info, Message: c.Info()}
	case cluster.GetReq, cluster.PutReq, cluster.DelReq:
	default:
		return cluster.Response(cluster.ErrNotImplemented)
	}

	if c.State() != Ready {
		return cluster.Response(cluster.ErrInvalidRequest)
	}
	if req.Key == "" || (req.Type == cluster.PutReq && req.Value == "") {
		return cluster.Response(cluster.ErrInvalidRequest)
	}
	if req.Type == cluster.GetReq {
		return c.handleGet(ctx, req)
	}
	return c.handleTransaction(ctx, req)
}

// Info lists the registered slaves and, with a health monitor attached,
// their health
func (c *Coordinator) Info() string {
	slaves := c.Slaves()

	var b strings.Builder
	b.WriteString("Slaves:\n")
	for _, s := range slaves {
		fmt.Fprintf(&b, "{%s, %s}\n", s.Host, s.Port)
	}
	if c.health != nil {
		b.WriteString("Health:\n")
		for _, s := range slaves {
			status := "unknown"
			if h := c.health.GetNodeHealth(s.Addr()); h != nil {
				status = h.Status
			}
			fmt.Fprintf(&b, "{%s, %s} %s\n", s.Host, s.Port, status)
		}
	}
	return b.String()
}

// replicas snapshots the slaves responsible for key
func (c *Coordinator) replicas(key string) []Slave {
	c.ringMu.RLock()
	defer c.ringMu.RUnlock()
	return c.ring.Replicas(key, c.cfg.Redundancy)
}

// handleGet serves from the cache, or asks the primary and then its
// successors until one can be reached. The first replica answer is final.
func (c *Coordinator) handleGet(ctx context.Context, req *cluster.Message) *cluster.Message {
	l := c.cache.Lock(req.Key)
	l.RLock()
	value, err := c.cache.Get(req.Key)
	l.RUnlock()
	if err == nil {
		return &cluster.Message{Type: cluster.GetResp, Key: req.Key, Value: string(value)}
	}

	l.Lock()
	defer l.Unlock()
	if value, err := c.cache.Get(req.Key); err == nil {
		return &cluster.Message{Type: cluster.GetResp, Key: req.Key, Value: string(value)}
	}

	for _, s := range c.replicas(req.Key) {
		resp, err := c.exchanger.Exchange(ctx, s.Addr(), req)
		if err != nil {
			if errors.Is(err, cluster.ErrUnreachable) {
				c.observer.OnUnreachable(s)
			}
			c.logger.WithError(err).WithField("slave", s.Addr()).Warn("get failed, trying successor")
			continue
		}
		if resp.Type == cluster.GetResp {
			c.cache.Put(req.Key, []byte(resp.Value))
		}
		return resp
	}
	return cluster.Response(cluster.ErrGeneric)
}

// handleTransaction runs two-phase commit for a PUTREQ or DELREQ while
// holding the key's cache lock. The client sees the outcome only after every
// reachable replica has acknowledged the decision.
func (c *Coordinator) handleTransaction(ctx context.Context, req *cluster.Message) *cluster.Message {
	l := c.cache.Lock(req.Key)
	l.Lock()
	defer l.Unlock()

	replicas := c.replicas(req.Key)
	logger := c.logger.WithFields(log.Fields{"op": req.Type, "key": req.Key})

	// Phase 1: collect votes
	commit := true
	reason := ""
	for _, s := range replicas {
		resp, err := c.exchanger.Exchange(ctx, s.Addr(), req)
		switch {
		case err != nil:
			c.observer.OnUnreachable(s)
			logger.WithError(err).WithField("slave", s.Addr()).Warn("no vote, aborting")
			commit = false
			if reason == "" {
				reason = cluster.ErrMsgGeneric
			}
		case resp.Type != cluster.VoteCommit:
			commit = false
			if reason == "" {
				reason = resp.Message
				if reason == "" {
					reason = cluster.ErrMsgGeneric
				}
			}
		}
	}

	c.observer.OnPhaseTransition()

	// Phase 2: deliver the decision, naming the transaction's key
	decision := &cluster.Message{Type: cluster.Abort, Key: req.Key}
	if commit {
		decision.Type = cluster.Commit
	}
	for _, s := range replicas {
		c.deliver(ctx, s, decision)
	}

	if !commit {
		logger.WithField("reason", reason).Debug("transaction aborted")
		return &cluster.Message{Type: cluster.Resp, Message: reason}
	}
	if req.Type == cluster.PutReq {
		c.cache.Put(req.Key, []byte(req.Value))
	} else {
		_ = c.cache.Delete(req.Key)
	}
	logger.Debug("transaction committed")
	return cluster.Response(nil)
}

// deliver sends the decision to s until it is acknowledged. A slave that
// cannot be dialed is reported and skipped; it learns the outcome when it
// rebuilds. The client's cancellation does not cut phase 2 short.
func (c *Coordinator) deliver(ctx context.Context, s Slave, decision *cluster.Message) {
	ctx = context.WithoutCancel(ctx)
	logger := c.logger.WithFields(log.Fields{"slave": s.Addr(), "decision": decision.Type})

	for attempt := 1; ; attempt++ {
		resp, err := c.exchanger.Exchange(ctx, s.Addr(), decision)
		if err == nil && resp.Type == cluster.Ack {
			return
		}
		if errors.Is(err, cluster.ErrUnreachable) {
			c.observer.OnUnreachable(s)
			logger.WithError(err).Warn("decision not delivered")
			return
		}
		if c.cfg.Phase2MaxAttempts > 0 && attempt >= c.cfg.Phase2MaxAttempts {
			logger.WithField("attempts", attempt).Error("giving up on decision delivery")
			return
		}
		logger.WithField("attempt", attempt).WithError(err).Debug("decision not acknowledged, retrying")
		time.Sleep(c.cfg.Phase2Backoff)
	}
}

// logObserver records transaction events in the log
type logObserver struct{}

func (logObserver) OnUnreachable(s Slave) {
	log.WithField("slave", s.Addr()).Warn("slave unreachable")
}

func (logObserver) OnPhaseTransition() {}
