package session

import (
	"log"
	"sync"
)

// Manager is a process-wide store of live Sessions, mirroring
// internal/mcp/store.go's McpStore (one map, one mutex, GetOrCreate/Get/Remove),
// generalized from "one McpConnectionManager per workflow session" to "one
// handshake-gated Session, each owning its own subprocess, per HTTP client."
type Manager struct {
	spec ChildSpec

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty Manager configured to spawn children per spec.
func NewManager(spec ChildSpec) *Manager {
	return &Manager{
		spec:     spec,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session in AwaitingBoth, for a POST /mcp initialize
// request with no Mcp-Session-Id header.
func (m *Manager) Create() *Session {
	s := newSession(m.spec)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session for id, or (nil, false) if unknown.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove terminates and forgets a session, for DELETE /mcp.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		s.Terminate(ErrUnknownSession)
		log.Printf("session: removed %s", id)
	}
	return ok
}

// Shutdown terminates every live session, for gateway graceful shutdown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Terminate(ErrUnknownSession)
	}
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
