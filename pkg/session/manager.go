package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Manager owns a set of independent sessions.
type Manager struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:   logger.With("component", "session.manager"),
		sessions: make(map[string]*Session),
	}
}

// Add registers s. IDs must be unique.
func (m *Manager) Add(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID()]; ok {
		return ErrDuplicateSession
	}
	m.sessions[s.ID()] = s
	return nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// List returns every session ordered by ID.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Statuses returns a snapshot of every session ordered by ID.
func (m *Manager) Statuses() []Status {
	list := m.List()
	out := make([]Status, len(list))
	for i, s := range list {
		out[i] = s.Status()
	}
	return out
}

// Run runs every session until ctx is done. A session that fails to start
// does not stop the others; the first such error is returned after all
// sessions have exited.
func (m *Manager) Run(ctx context.Context) error {
	var g errgroup.Group
	for _, s := range m.List() {
		s := s
		g.Go(func() error {
			err := s.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("session exited", "session", s.ID(), "error", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
