package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or expired session IDs.
var ErrSessionNotFound = errors.New("session not found")

// DefaultSessionTTL is how long an untouched session survives.
const DefaultSessionTTL = 30 * time.Minute

// SessionFactory builds a session for a freshly allocated ID.
type SessionFactory func(id string) *ViewSession

// SessionManager owns the live sessions and expires idle ones.
type SessionManager struct {
	newSession SessionFactory
	ttl        time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[string]*ViewSession
}

// NewSessionManager creates a manager. A non-positive ttl selects DefaultSessionTTL.
func NewSessionManager(factory SessionFactory, ttl time.Duration, logger *slog.Logger) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		newSession: factory,
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
		sessions:   make(map[string]*ViewSession),
	}
}

// Create allocates and registers a new session.
func (m *SessionManager) Create() *ViewSession {
	s := m.newSession(uuid.NewString())

	m.mu.Lock()
	m.sessions[s.ID()] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("session created", "session", s.ID(), "active", count)
	return s
}

// Get looks up a session by ID. A lookup counts as use and resets the idle
// clock.
func (m *SessionManager) Get(id string) (*ViewSession, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if err := s.touch(); err != nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Dispose removes and disposes a session.
func (m *SessionManager) Dispose(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Dispose()
	return nil
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// SweepIdle disposes sessions untouched for longer than the TTL and returns
// how many were removed. Sessions with a live subscriber are never idle.
func (m *SessionManager) SweepIdle() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*ViewSession
	for id, s := range m.sessions {
		if s.LastUsed().Before(cutoff) && !s.Watched() {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Dispose()
	}
	if len(expired) > 0 {
		m.logger.Info("expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is cancelled, then disposes all of them.
func (m *SessionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return
		case <-ticker.C:
			m.SweepIdle()
		}
	}
}

// CloseAll disposes every session.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*ViewSession)
	m.mu.Unlock()

	for _, s := range all {
		s.Dispose()
	}
}
