package lineserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type Options struct {
	// MaxClients caps concurrently registered sessions. Zero means no cap.
	// Every idle client otherwise holds a goroutine until kicked.
	MaxClients int
	// Registerer receives the server's collectors. Nil keeps them private.
	Registerer prometheus.Registerer
}

type Server struct {
	opts     Options
	logger   *slog.Logger
	metrics  *Metrics
	registry *Registry
	handlers handlers

	// mu orders registration against Close so no session is admitted after
	// the final kick pass.
	mu         sync.Mutex
	listener   net.Listener
	port       int
	acceptDone chan struct{}
	running    atomic.Bool

	sessions sync.WaitGroup
}

func NewServer(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := NewMetrics(opts.Registerer)
	return &Server{
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
		registry: NewRegistry(metrics.ConnectedClients),
	}
}

// Start binds a TCP listener on port and starts accepting clients on a
// background goroutine. Port 0 picks a free port; see Port.
func (s *Server) Start(port int) error {
	if s.running.Load() {
		return ErrServerRunning
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		s.logger.Error("bind failed", "port", port, "error", err)
		return &BindError{Port: port, Err: err}
	}
	if err := s.StartListener(ln); err != nil {
		_ = ln.Close()
		return err
	}
	return nil
}

// StartListener serves clients from an already bound listener. The server
// takes ownership of ln and closes it exactly once.
func (s *Server) StartListener(ln net.Listener) error {
	s.mu.Lock()
	if s.running.Load() {
		s.mu.Unlock()
		return ErrServerRunning
	}
	port := portOf(ln.Addr())
	done := make(chan struct{})
	s.listener = ln
	s.port = port
	s.acceptDone = done
	s.running.Store(true)
	s.mu.Unlock()

	s.logger.Info("server started", "addr", ln.Addr().String(), "port", port)
	s.dispatchStarted(port)

	go s.acceptLoop(ln, port, done)
	return nil
}

// Close stops accepting, kicks every session and waits for all read loops
// to finish. It is safe to call more than once. It must not be called
// synchronously from an event handler, since Close waits for the goroutine
// running that handler.
func (s *Server) Close() {
	s.mu.Lock()
	ln := s.listener
	stopping := s.running.CompareAndSwap(true, false)
	s.mu.Unlock()

	if stopping {
		s.logger.Info("shutting down")
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("close listener", "error", err)
		}
		s.KickAll()
	}

	s.Wait()

	if stopping {
		s.logger.Info("shutdown complete")
	}
}

// Wait blocks until the accept loop has exited and every session read loop
// has returned.
func (s *Server) Wait() {
	s.mu.Lock()
	done := s.acceptDone
	s.mu.Unlock()

	if done == nil {
		return
	}
	<-done
	s.sessions.Wait()
}

func (s *Server) acceptLoop(ln net.Listener, port int, done chan struct{}) {
	defer close(done)

	for {
		raw, err := ln.Accept()
		if err != nil {
			// A false running flag means Close asked for this.
			if s.running.CompareAndSwap(true, false) {
				s.logger.Error("accept failed, stopping server", "error", err)
				_ = ln.Close()
				s.KickAll()
			}
			break
		}
		s.admit(raw)
	}

	s.logger.Info("server closed", "port", port)
	s.dispatchClosed(port)
}

func (s *Server) admit(raw net.Conn) {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		_ = raw.Close()
		return
	}
	sess, err := s.registry.Register(raw, s.opts.MaxClients)
	if err == nil {
		s.sessions.Add(1)
	}
	s.mu.Unlock()

	if err != nil {
		s.metrics.ConnectionsRejected.Inc()
		s.logger.Warn("connection refused", "remote", remoteOf(raw.RemoteAddr()).String(), "error", err)
		_ = raw.Close()
		return
	}

	s.metrics.ConnectionsTotal.Inc()
	s.logger.Info("client connected", "client_id", sess.id, "remote", sess.remote.String())

	// Connected fires before the read loop starts so a client's events
	// always begin with it.
	s.dispatchConnected(sess.id, sess.remote)
	go s.handleSession(sess)
}

// Kick tears down the connection of id. The session's read loop then
// removes it and fires ClientDisconnected.
func (s *Server) Kick(id uint64) error {
	sess, ok := s.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("kick client %d: %w", id, ErrUnknownClient)
	}
	s.kick(sess)
	return nil
}

// KickAll kicks every registered session. Sessions that disconnect while
// this runs are skipped.
func (s *Server) KickAll() {
	for _, sess := range s.registry.Snapshot() {
		s.kick(sess)
	}
}

func (s *Server) kick(sess *Session) {
	won, err := sess.kill()
	if !won {
		return
	}
	s.metrics.Kicks.Inc()
	if err != nil {
		s.logger.Debug("kick teardown", "client_id", sess.id, "error", err)
	}
	s.logger.Info("client kicked", "client_id", sess.id)
}

func (s *Server) Send(id uint64, text string) error {
	return s.send("send", id, text, false)
}

func (s *Server) SendLine(id uint64, text string) error {
	return s.send("send_line", id, text, true)
}

func (s *Server) send(op string, id uint64, text string, newline bool) error {
	sess, ok := s.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("%s to client %d: %w", op, id, ErrUnknownClient)
	}
	err := sess.conn.Write(text, newline)
	s.metrics.write(op, err)
	if err != nil {
		return &WriteError{ClientID: id, Err: err}
	}
	return nil
}

// Broadcast writes text to every registered client and returns how many
// writes succeeded. Failed recipients are reported in a *BroadcastError.
func (s *Server) Broadcast(text string) (int, error) {
	return s.broadcast("broadcast", text, false)
}

func (s *Server) BroadcastLine(text string) (int, error) {
	return s.broadcast("broadcast_line", text, true)
}

func (s *Server) broadcast(op string, text string, newline bool) (int, error) {
	var (
		delivered int
		failures  []*WriteError
	)
	for _, sess := range s.registry.Snapshot() {
		err := sess.conn.Write(text, newline)
		s.metrics.write(op, err)
		if err != nil {
			failures = append(failures, &WriteError{ClientID: sess.id, Err: err})
			continue
		}
		delivered++
	}
	if len(failures) > 0 {
		s.logger.Warn("broadcast incomplete", "delivered", delivered, "failed", len(failures))
		return delivered, &BroadcastError{Failures: failures}
	}
	return delivered, nil
}

func (s *Server) IsRunning() bool {
	return s.running.Load()
}

func (s *Server) ClientCount() int {
	return s.registry.Len()
}

// ListClientIDs returns the registered ids in ascending order.
func (s *Server) ListClientIDs() []uint64 {
	return s.registry.IDs()
}

func (s *Server) Clients() []ClientInfo {
	sessions := s.registry.Snapshot()
	infos := make([]ClientInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.info())
	}
	return infos
}

// Addr is the bound listener address, or nil before the first start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port is the bound port of the most recent start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}
