package lineserver

import (
	"net"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry maps client ids to live sessions. Every read and mutation,
// including id allocation, happens under mu.
type Registry struct {
	mu      sync.RWMutex
	clients map[uint64]*Session
	// nextID is never reset; a uint64 does not wrap within a process lifetime.
	nextID uint64
	gauge  prometheus.Gauge
}

// NewRegistry returns an empty registry. gauge may be nil.
func NewRegistry(gauge prometheus.Gauge) *Registry {
	return &Registry{
		clients: make(map[uint64]*Session),
		gauge:   gauge,
	}
}

// Register wraps raw in a new Active session with the next id. When limit is
// positive and already reached, no id is consumed and ErrTooManyClients is
// returned.
func (r *Registry) Register(raw net.Conn, limit int) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit > 0 && len(r.clients) >= limit {
		return nil, ErrTooManyClients
	}
	r.nextID++
	sess := newSession(r.nextID, raw)
	r.clients[sess.id] = sess
	r.setGauge()
	return sess, nil
}

func (r *Registry) Lookup(id uint64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.clients[id]
	return sess, ok
}

// Remove deletes id and reports whether it was present.
func (r *Registry) Remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[id]; !ok {
		return false
	}
	delete(r.clients, id)
	r.setGauge()
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Snapshot returns the registered sessions ordered by id.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.clients))
	for _, sess := range r.clients {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].id < sessions[j].id })
	return sessions
}

func (r *Registry) IDs() []uint64 {
	r.mu.RLock()
	ids := make([]uint64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) setGauge() {
	if r.gauge != nil {
		r.gauge.Set(float64(len(r.clients)))
	}
}
