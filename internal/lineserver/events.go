package lineserver

import (
	"sync"
	"time"
)

type (
	StartedFunc    func(port int)
	ClosedFunc     func(port int)
	ConnectFunc    func(id uint64, remote Remote)
	DisconnectFunc func(id uint64, remote Remote)
	MessageFunc    func(text string, id uint64)
)

// handlers holds at most one callback per event kind. Setting a handler
// replaces the previous one; nil removes it.
type handlers struct {
	mu           sync.RWMutex
	started      StartedFunc
	closed       ClosedFunc
	connected    ConnectFunc
	disconnected DisconnectFunc
	message      MessageFunc
}

func (s *Server) OnServerStarted(fn StartedFunc) {
	s.handlers.mu.Lock()
	s.handlers.started = fn
	s.handlers.mu.Unlock()
}

func (s *Server) OnServerClosed(fn ClosedFunc) {
	s.handlers.mu.Lock()
	s.handlers.closed = fn
	s.handlers.mu.Unlock()
}

func (s *Server) OnClientConnected(fn ConnectFunc) {
	s.handlers.mu.Lock()
	s.handlers.connected = fn
	s.handlers.mu.Unlock()
}

func (s *Server) OnClientDisconnected(fn DisconnectFunc) {
	s.handlers.mu.Lock()
	s.handlers.disconnected = fn
	s.handlers.mu.Unlock()
}

// OnMessageReceived sets the handler for inbound lines. Lines read while no
// handler is set are dropped.
func (s *Server) OnMessageReceived(fn MessageFunc) {
	s.handlers.mu.Lock()
	s.handlers.message = fn
	s.handlers.mu.Unlock()
}

func (s *Server) dispatchStarted(port int) {
	s.handlers.mu.RLock()
	fn := s.handlers.started
	s.handlers.mu.RUnlock()
	if fn != nil {
		s.timed("server_started", func() { fn(port) })
	}
}

func (s *Server) dispatchClosed(port int) {
	s.handlers.mu.RLock()
	fn := s.handlers.closed
	s.handlers.mu.RUnlock()
	if fn != nil {
		s.timed("server_closed", func() { fn(port) })
	}
}

func (s *Server) dispatchConnected(id uint64, remote Remote) {
	s.handlers.mu.RLock()
	fn := s.handlers.connected
	s.handlers.mu.RUnlock()
	if fn != nil {
		s.timed("client_connected", func() { fn(id, remote) })
	}
}

func (s *Server) dispatchDisconnected(id uint64, remote Remote) {
	s.handlers.mu.RLock()
	fn := s.handlers.disconnected
	s.handlers.mu.RUnlock()
	if fn != nil {
		s.timed("client_disconnected", func() { fn(id, remote) })
	}
}

func (s *Server) dispatchMessage(text string, id uint64) {
	s.handlers.mu.RLock()
	fn := s.handlers.message
	s.handlers.mu.RUnlock()
	if fn != nil {
		s.timed("message_received", func() { fn(text, id) })
	}
}

func (s *Server) timed(event string, call func()) {
	start := time.Now()
	call()
	s.metrics.EventDispatch.WithLabelValues(event).Observe(time.Since(start).Seconds())
}
