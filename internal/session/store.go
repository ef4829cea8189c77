// Package session maintains the list of known chat session summaries and
// mediates backend CRUD for sessions.
package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ziggy-ai/chat-client/internal/model"
	"github.com/ziggy-ai/chat-client/pkg/logger"
	"github.com/ziggy-ai/chat-client/pkg/metrics"
)

// Backend is the slice of the API client the store needs.
type Backend interface {
	ListSessions(ctx context.Context) ([]model.SessionSummary, error)
	CreateSession(ctx context.Context, title string) (model.SessionSummary, error)
	RenameSession(ctx context.Context, id, title string) (model.SessionSummary, error)
	DeleteSession(ctx context.Context, id string) error
}

// Store holds session summaries. The server's order is authoritative on
// refresh; locally created sessions are prepended (newest first). The
// list never contains two entries with the same id, and the store never
// generates ids itself.
type Store struct {
	backend Backend
	logger  *logger.Logger

	mu       sync.RWMutex
	sessions []model.SessionSummary
}

// NewStore creates an empty session store.
func NewStore(backend Backend, log *logger.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  log,
	}
}

// Refresh replaces the local list with the backend's. On failure,
// including an unauthenticated backend, the local list is left untouched
// and the error is surfaced so the caller can redirect to login.
func (s *Store) Refresh(ctx context.Context) error {
	fetched, err := s.backend.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh sessions: %w", err)
	}

	// Server order is authoritative; duplicate ids keep first occurrence.
	seen := make(map[string]struct{}, len(fetched))
	list := make([]model.SessionSummary, 0, len(fetched))
	for _, sum := range fetched {
		if _, ok := seen[sum.ID]; ok {
			s.logger.Warn("backend returned duplicate session id", zap.String("session_id", sum.ID))
			continue
		}
		seen[sum.ID] = struct{}{}
		list = append(list, sum)
	}

	s.mu.Lock()
	s.sessions = list
	s.mu.Unlock()

	metrics.SessionsKnown.Set(float64(len(list)))
	return nil
}

// Create asks the backend for a new session and prepends the returned
// summary. The list is unchanged on failure.
func (s *Store) Create(ctx context.Context, title string) (model.SessionSummary, error) {
	sum, err := s.backend.CreateSession(ctx, title)
	if err != nil {
		return model.SessionSummary{}, fmt.Errorf("failed to create session: %w", err)
	}

	s.mu.Lock()
	if i := s.indexLocked(sum.ID); i >= 0 {
		// Backend re-issued a known id; trust it as authoritative and
		// update in place rather than violate uniqueness.
		s.sessions[i] = sum
	} else {
		s.sessions = append([]model.SessionSummary{sum}, s.sessions...)
	}
	count := len(s.sessions)
	s.mu.Unlock()

	metrics.SessionsKnown.Set(float64(count))
	s.logger.Info("session created", zap.String("session_id", sum.ID))
	return sum, nil
}

// Rename updates a session title on the backend and then in place
// locally. The list is unchanged on failure.
func (s *Store) Rename(ctx context.Context, id, title string) error {
	sum, err := s.backend.RenameSession(ctx, id, title)
	if err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}

	s.mu.Lock()
	if i := s.indexLocked(id); i >= 0 {
		s.sessions[i].Title = sum.Title
	}
	s.mu.Unlock()
	return nil
}

// Remove deletes a session on the backend and then drops the local entry,
// preserving the order of the rest. The list is unchanged on failure.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.backend.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.mu.Lock()
	if i := s.indexLocked(id); i >= 0 {
		s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
	}
	count := len(s.sessions)
	s.mu.Unlock()

	metrics.SessionsKnown.Set(float64(count))
	s.logger.Info("session removed", zap.String("session_id", id))
	return nil
}

// UpdatePreview sets an entry's preview text locally. It never calls the
// backend; unknown ids are ignored.
func (s *Store) UpdatePreview(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		s.sessions[i].LastMessagePreview = text
	}
}

// Sessions returns a copy of the current list.
func (s *Store) Sessions() []model.SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SessionSummary, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// Get returns the summary with the given id, if known.
func (s *Store) Get(id string) (model.SessionSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.sessions[i], true
	}
	return model.SessionSummary{}, false
}

func (s *Store) indexLocked(id string) int {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}
