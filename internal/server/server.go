// Package server runs the TCP accept loop shared by the coordinator and the
// participants: accepted connections wait in a bounded queue until one of a
// fixed number of workers handles them.
package server

import (
	"net"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultWorkers is used when New is given fewer than one worker
const DefaultWorkers = 8

// Handler serves one connection to completion. The server closes the
// connection afterwards.
type Handler interface {
	Handle(conn net.Conn)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(conn net.Conn)

// Handle calls f(conn)
func (f HandlerFunc) Handle(conn net.Conn) {
	f(conn)
}

// ErrServerClosed is returned by Serve after Stop
var ErrServerClosed = errors.New("server closed")

// Server dispatches accepted connections to a worker pool
type Server struct {
	addr    string
	handler Handler
	workers int
	queue   chan net.Conn
	logger  *log.Entry

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// New creates a server for addr. Connections beyond workers wait in a
// queue of the same size; the accept loop blocks when it is full.
func New(addr string, handler Handler, workers int) *Server {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Server{
		addr:    addr,
		handler: handler,
		workers: workers,
		queue:   make(chan net.Conn, workers),
		logger:  log.WithField("listen", addr),
	}
}

// ListenAndServe listens on the configured address and serves until Stop
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.addr)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.logger = log.WithField("listen", ln.Addr().String())
	s.mu.Unlock()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.work()
	}
	s.logger.WithField("workers", s.workers).Info("serving")

	defer func() {
		close(s.queue)
		s.wg.Wait()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.WithError(err).Warn("accept timeout")
				continue
			}
			return errors.Wrap(err, "accept")
		}
		s.queue <- conn
	}
}

func (s *Server) work() {
	defer s.wg.Done()
	for conn := range s.queue {
		s.handler.Handle(conn)
		conn.Close()
	}
}

// Addr returns the bound address once serving, else the configured one
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stop closes the listener. Serve returns after queued connections finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.listener == nil {
		return nil
	}
	return errors.Wrap(s.listener.Close(), "close listener")
}
