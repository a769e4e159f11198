package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"inatmap/pkg/apisession"
	"inatmap/pkg/config"
	"inatmap/pkg/geocode"
	"inatmap/pkg/metrics"
	"inatmap/pkg/tracker"
)

var ErrNotFound = errors.New("session not found")

// Deps are the shared collaborators handed to every session. Both may be nil.
type Deps struct {
	Tracker *tracker.Tracker
	Metrics *metrics.Metrics
}

// Manager creates, finds and expires page sessions.
type Manager struct {
	fwd    geocode.Forwarder
	cfg    *config.Config
	deps   Deps
	store  *apisession.Store[Session]
	logger *slog.Logger
}

// NewManager creates a manager. fwd is shared by all sessions; each session
// keeps its own search sequence.
func NewManager(fwd geocode.Forwarder, cfg *config.Config, deps Deps) *Manager {
	m := &Manager{
		fwd:    fwd,
		cfg:    cfg,
		deps:   deps,
		logger: slog.With("component", "session"),
	}
	m.store = apisession.New(time.Duration(cfg.Session.IdleTTL), func(id string, s *Session) {
		s.close()
		m.logger.Info("Session expired", "session_id", id)
	})
	return m
}

// Create starts a page session with a mounted map.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := newSession(uuid.NewString(), m.fwd, m.cfg, m.deps)
	if err := s.mount(); err != nil {
		s.close()
		return nil, fmt.Errorf("create session: %w", err)
	}
	m.store.Put(s.ID, s)
	m.deps.Metrics.SetSessions(m.store.Len())
	m.logger.Info("Session created", "session_id", s.ID)
	return s, nil
}

// Get returns the session with id and marks it active.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return s, nil
}

// Touch marks the session active without handing it out. It reports false
// once the session is gone.
func (m *Manager) Touch(id string) bool {
	_, ok := m.store.Get(id)
	return ok
}

// Close tears down the session with id.
func (m *Manager) Close(id string) error {
	s, ok := m.store.Delete(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	s.close()
	m.deps.Metrics.SetSessions(m.store.Len())
	m.logger.Info("Session closed", "session_id", id)
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	return m.store.Len()
}

// Reap closes sessions idle past the TTL and returns how many were closed.
func (m *Manager) Reap(now time.Time) int {
	ids := m.store.Cleanup(now)
	if len(ids) > 0 {
		m.deps.Metrics.SetSessions(m.store.Len())
	}
	return len(ids)
}

// Run reaps idle sessions until ctx is cancelled, then closes the rest.
func (m *Manager) Run(ctx context.Context) {
	interval := time.Duration(m.cfg.Session.ReapInterval)
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case now := <-ticker.C:
			if n := m.Reap(now); n > 0 {
				m.logger.Debug("Reaped idle sessions", "count", n)
			}
		}
	}
}

func (m *Manager) shutdown() {
	all := m.store.Drain()
	for _, s := range all {
		s.close()
	}
	m.deps.Metrics.SetSessions(0)
	if len(all) > 0 {
		m.logger.Info("Closed sessions on shutdown", "count", len(all))
	}
}
