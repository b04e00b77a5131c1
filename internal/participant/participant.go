// Package participant implements a ringkv storage node: the GET path over a
// cache and durable store, and the participant side of two-phase commit.
package participant

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dreamware/ringkv/internal/cache"
	"github.com/dreamware/ringkv/internal/cluster"
	"github.com/dreamware/ringkv/internal/storage"
	"github.com/dreamware/ringkv/internal/wal"
)

// State is the participant's 2PC state
type State int

const (
	Init  State = iota // Not yet registered
	Ready              // Free to vote
	Wait               // Voted commit, waiting for the decision
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case Ready:
		return "READY"
	case Wait:
		return "WAIT"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// operation is the request a participant has voted to commit
type operation struct {
	kind      wal.Kind
	key       string
	value     string
	committed bool // COMMIT already in the log
}

// Participant serves one ring member. Transaction messages are serialized by
// mu; GET requests only touch the cache and store under the per-key lock.
type Participant struct {
	Host string
	Port string

	store  storage.Store
	log    wal.TransactionLog
	cache  *cache.Cache
	client *cluster.Client
	logger *log.Entry

	mu      sync.Mutex
	state   State
	pending *operation
}

// New creates a participant in the INIT state
func New(host, port string, store storage.Store, tlog wal.TransactionLog, c *cache.Cache) *Participant {
	return &Participant{
		Host:   host,
		Port:   port,
		store:  store,
		log:    tlog,
		cache:  c,
		client: cluster.NewClient(cluster.DefaultTimeout),
		logger: log.WithField("participant", net.JoinHostPort(host, port)),
	}
}

// SetClient replaces the client used for registration
func (p *Participant) SetClient(c *cluster.Client) {
	p.client = c
}

// State returns the current 2PC state
func (p *Participant) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Register announces this participant to the coordinator at addr.
// A SUCCESS response moves an INIT participant to READY.
func (p *Participant) Register(ctx context.Context, addr string) error {
	req := &cluster.Message{Type: cluster.Register, Key: p.Port, Value: p.Host}
	resp, err := p.client.Exchange(ctx, addr, req)
	if err != nil {
		return errors.Wrapf(err, "register with %s", addr)
	}
	if resp.Type != cluster.Resp || resp.Message != cluster.MsgSuccess {
		return errors.Errorf("register with %s: %s", addr, resp.Message)
	}

	p.mu.Lock()
	if p.state == Init {
		p.state = Ready
	}
	p.mu.Unlock()

	p.logger.WithField("coordinator", addr).Info("registered")
	return nil
}

// Handle serves one connection: a single request and its response
func (p *Participant) Handle(conn net.Conn) {
	req, err := cluster.Receive(conn)
	if err != nil {
		p.logger.WithError(err).Debug("bad request")
		_ = cluster.Send(conn, cluster.Response(cluster.ErrInvalidRequest))
		return
	}
	if err := cluster.Send(conn, p.HandleMessage(req)); err != nil {
		p.logger.WithError(err).Warn("send response failed")
	}
}

// HandleMessage dispatches req and returns the response to send
func (p *Participant) HandleMessage(req *cluster.Message) *cluster.Message {
	switch req.Type {
	case cluster.GetReq:
		return p.handleGet(req)
	case cluster.PutReq, cluster.DelReq:
		return p.handleVote(req)
	case cluster.Commit:
		return p.handleCommit(req.Key)
	case cluster.Abort:
		return p.handleAbort(req.Key)
	case cluster.Info:
		return &cluster.Message{Type: cluster.Info, Message: p.Info()}
	default:
		return cluster.Response(cluster.ErrNotImplemented)
	}
}

// Info returns a timestamp and the "{host, port}" line
func (p *Participant) Info() string {
	st := p.store.Stats()
	cs := p.cache.Stats()
	return fmt.Sprintf("%s\n{%s, %s}\nstore: keys=%d bytes=%d\ncache: entries=%d gets=%d hits=%d evictions=%d",
		time.Now().Format(time.ANSIC), p.Host, p.Port,
		st.Keys, st.Bytes, cs.Entries, cs.Ops.Gets, cs.Ops.Hits, cs.Ops.Evictions)
}

// Get returns the value for key, reading through the cache
func (p *Participant) Get(key string) ([]byte, error) {
	l := p.cache.Lock(key)
	l.RLock()
	value, err := p.cache.Get(key)
	l.RUnlock()
	if err == nil {
		return value, nil
	}

	l.Lock()
	defer l.Unlock()
	if value, err := p.cache.Get(key); err == nil {
		return value, nil
	}
	value, err = p.store.Get(key)
	if err != nil {
		return nil, err
	}
	p.cache.Put(key, value)
	return value, nil
}

func (p *Participant) handleGet(req *cluster.Message) *cluster.Message {
	if req.Key == "" {
		return cluster.Response(cluster.ErrInvalidRequest)
	}
	value, err := p.Get(req.Key)
	if err != nil {
		return cluster.Response(err)
	}
	return &cluster.Message{Type: cluster.GetResp, Key: req.Key, Value: string(value)}
}

// handleVote runs phase 1 for a PUTREQ or DELREQ
func (p *Participant) handleVote(req *cluster.Message) *cluster.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Wait {
		return cluster.Response(cluster.ErrInvalidRequest)
	}
	if req.Key == "" || (req.Type == cluster.PutReq && req.Value == "") {
		return cluster.Response(cluster.ErrInvalidRequest)
	}

	op := &operation{kind: wal.KindDelReq, key: req.Key}
	if req.Type == cluster.PutReq {
		op.kind = wal.KindPutReq
		op.value = req.Value
	}
	logger := p.logger.WithFields(log.Fields{"op": op.kind, "key": op.key})

	if err := p.log.Append(wal.NewRecord(op.kind, op.key, op.value)); err != nil {
		logger.WithError(err).Error("log request failed")
		return &cluster.Message{Type: cluster.VoteAbort, Message: cluster.ErrMsgGeneric}
	}

	var err error
	if op.kind == wal.KindPutReq {
		err = p.store.CheckPut(op.key, []byte(op.value))
	} else {
		err = p.store.CheckDelete(op.key)
	}
	if err != nil {
		if lerr := p.log.Append(wal.NewRecord(wal.KindAbort, "", "")); lerr != nil {
			logger.WithError(lerr).Error("log abort failed")
		}
		logger.WithError(err).Debug("vote abort")
		return &cluster.Message{Type: cluster.VoteAbort, Message: cluster.MessageFor(err)}
	}

	p.pending = op
	p.state = Wait
	logger.Debug("vote commit")
	return &cluster.Message{Type: cluster.VoteCommit}
}

// resolves reports whether a decision for key settles the pending operation.
// Decisions name the key of the transaction they belong to; any other
// decision is a retry or belongs to a transaction this participant refused.
func (p *Participant) resolves(key string) bool {
	return p.pending != nil && p.pending.key == key
}

// handleCommit logs and applies the pending operation. A COMMIT that does not
// match it is a retried decision and is acknowledged again.
func (p *Participant) handleCommit(key string) *cluster.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.resolves(key) {
		return &cluster.Message{Type: cluster.Ack}
	}
	op := p.pending
	if !op.committed {
		if err := p.log.Append(wal.NewRecord(wal.KindCommit, "", "")); err != nil {
			p.logger.WithError(err).Error("log commit failed")
			return cluster.Response(cluster.ErrGeneric)
		}
		op.committed = true
	}
	if err := p.apply(op); err != nil {
		p.logger.WithError(err).WithField("key", op.key).Error("apply commit failed")
		return cluster.Response(cluster.ErrGeneric)
	}

	p.pending = nil
	p.state = Ready
	return &cluster.Message{Type: cluster.Ack}
}

// handleAbort drops the pending operation when the ABORT is for it. An ABORT
// for a transaction this participant never voted on leaves its state alone.
func (p *Participant) handleAbort(key string) *cluster.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.resolves(key) {
		return &cluster.Message{Type: cluster.Ack}
	}
	if p.pending.committed {
		// The decision is already durable as COMMIT
		return cluster.Response(cluster.ErrInvalidRequest)
	}
	if err := p.log.Append(wal.NewRecord(wal.KindAbort, "", "")); err != nil {
		p.logger.WithError(err).Error("log abort failed")
		return cluster.Response(cluster.ErrGeneric)
	}
	p.pending = nil
	p.state = Ready
	return &cluster.Message{Type: cluster.Ack}
}

// apply writes op to the store and then the cache under the key lock.
// Deleting an absent key succeeds.
func (p *Participant) apply(op *operation) error {
	l := p.cache.Lock(op.key)
	l.Lock()
	defer l.Unlock()

	switch op.kind {
	case wal.KindPutReq:
		value := []byte(op.value)
		if err := p.store.Put(op.key, value); err != nil {
			return err
		}
		p.cache.Put(op.key, value)
	case wal.KindDelReq:
		if err := p.store.Delete(op.key); err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
			return err
		}
		_ = p.cache.Delete(op.key)
	default:
		return errors.Errorf("cannot apply %s", op.kind)
	}
	return nil
}
