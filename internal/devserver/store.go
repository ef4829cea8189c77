package devserver

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ziggy-ai/chat-client/internal/model"
)

// ErrNotFound indicates the session does not exist or belongs to another
// user.
var ErrNotFound = errors.New("session not found")

// previewMaxChars caps the stored last-message preview.
const previewMaxChars = 80

type storedSession struct {
	owner    string
	summary  model.SessionSummary
	messages []model.Message
}

// Store is the dev backend's in-memory session and message store. Lists
// are returned newest first. A real deployment would swap this for a
// database behind the same methods.
type Store struct {
	mu       sync.RWMutex
	order    []string
	sessions map[string]*storedSession
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*storedSession),
	}
}

// CreateSession creates a session owned by owner and returns its summary.
func (s *Store) CreateSession(owner, title string) model.SessionSummary {
	sum := model.SessionSummary{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Title:     title,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[sum.ID] = &storedSession{owner: owner, summary: sum}
	s.order = append([]string{sum.ID}, s.order...)
	s.mu.Unlock()

	return sum
}

// ListSessions returns the owner's summaries, newest first.
func (s *Store) ListSessions(owner string) []model.SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.SessionSummary, 0, len(s.order))
	for _, id := range s.order {
		if sess := s.sessions[id]; sess != nil && sess.owner == owner {
			out = append(out, sess.summary)
		}
	}
	return out
}

// RenameSession updates a session title and returns the updated summary.
func (s *Store) RenameSession(owner, id, title string) (model.SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getLocked(owner, id)
	if err != nil {
		return model.SessionSummary{}, err
	}
	sess.summary.Title = title
	return sess.summary, nil
}

// DeleteSession removes a session and its messages permanently.
func (s *Store) DeleteSession(owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getLocked(owner, id); err != nil {
		return err
	}
	delete(s.sessions, id)
	for i, sid := range s.order {
		if sid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// AppendMessage stores a message under a session and refreshes the
// summary preview. Missing ids and timestamps are assigned server-side.
func (s *Store) AppendMessage(owner, id string, msg model.Message) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getLocked(owner, id)
	if err != nil {
		return model.Message{}, err
	}

	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	sess.messages = append(sess.messages, msg)
	sess.summary.LastMessagePreview = truncate(msg.Content, previewMaxChars)
	return msg, nil
}

// ListMessages returns a session's messages in append order.
func (s *Store) ListMessages(owner, id string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.getLocked(owner, id)
	if err != nil {
		return nil, err
	}
	out := make([]model.Message, len(sess.messages))
	copy(out, sess.messages)
	return out, nil
}

func (s *Store) getLocked(owner, id string) (*storedSession, error) {
	sess, ok := s.sessions[id]
	if !ok || sess.owner != owner {
		return nil, ErrNotFound
	}
	return sess, nil
}

func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
