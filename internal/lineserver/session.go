package lineserver

import (
	"errors"
	"io"
	"net"
	"sync/atomic"
)

// Session is the server side of one connected client. Its connection is
// owned exclusively by the session until teardown.
type Session struct {
	id     uint64
	remote Remote
	conn   *Conn
	state  atomic.Int32
}

func newSession(id uint64, raw net.Conn) *Session {
	s := &Session{
		id:     id,
		remote: remoteOf(raw.RemoteAddr()),
		conn:   newConn(raw),
	}
	s.state.Store(int32(StateActive))
	return s
}

func (s *Session) ID() uint64     { return s.id }
func (s *Session) Remote() Remote { return s.remote }
func (s *Session) State() State   { return State(s.state.Load()) }

func (s *Session) info() ClientInfo {
	return ClientInfo{ID: s.id, Remote: s.remote.String(), State: s.State().String()}
}

// kill moves the session from Active to Closing and tears the connection
// down. Only the first caller wins; it returns false for everyone else.
func (s *Session) kill() (bool, error) {
	if !s.state.CompareAndSwap(int32(StateActive), int32(StateClosing)) {
		return false, nil
	}
	err := s.conn.Shutdown()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return true, err
}

func (s *Session) markClosed() {
	s.state.Store(int32(StateClosed))
}

// handleSession is the read loop. It is the only place a session is removed
// from the registry, so ClientDisconnected fires once per session however
// the teardown was triggered.
func (s *Server) handleSession(sess *Session) {
	defer s.sessions.Done()

	log := s.logger.With("client_id", sess.id, "remote", sess.remote.String())

	for {
		line, err := sess.conn.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) && sess.State() == StateActive {
				log.Warn("read failed, closing session", "error", err)
			}
			break
		}
		if line == "" {
			continue
		}
		s.metrics.MessagesReceived.Inc()
		s.dispatchMessage(line, sess.id)
	}

	if won, err := sess.kill(); won && err != nil {
		log.Debug("teardown after read loop", "error", err)
	}
	s.registry.Remove(sess.id)
	sess.markClosed()

	log.Info("client disconnected")
	s.dispatchDisconnected(sess.id, sess.remote)
}
