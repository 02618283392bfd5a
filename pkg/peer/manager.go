package peer

import (
	"net"
	"sync"
)

// Manager is the authoritative table of inbound peer sessions keyed by
// radio_id. The UDP receive loop adds and removes sessions and the
// scheduler removes peers it reaps for missed keepalives; every mutation
// takes the write lock, while readers such as the event emitter's
// snapshot take the read lock.
type Manager struct {
	mu      sync.RWMutex
	peers   map[uint32]*Session
}

func NewManager() *Manager {
	return &Manager{peers: make(map[uint32]*Session)}
}

// Get returns the session for radioID, or nil.
func (m *Manager) Get(radioID uint32) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peers[radioID]
}

// Put registers or replaces the session for its RadioID.
func (m *Manager) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[s.RadioID] = s
}

// Remove deletes the session for radioID.
func (m *Manager) Remove(radioID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, radioID)
}

// All returns a snapshot slice of every registered session.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.peers))
	for _, s := range m.peers {
		out = append(out, s)
	}
	return out
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// VerifySource reports whether addr matches the recorded address for an
// existing session at radioID. A session originating from a different
// remote address than the one recorded must be silently refused
// (MSTNAK) to prevent session takeover. Returns true if there is no
// existing session (nothing to take over) or if the addresses match.
func (m *Manager) VerifySource(radioID uint32, addr *net.UDPAddr) bool {
	s := m.Get(radioID)
	if s == nil {
		return true
	}
	return s.Addr.String() == addr.String()
}
