// Package conversation implements the chat session lifecycle: the
// Empty/Draft/Bound state machine for the active conversation, the
// optimistic send pipeline, and the typewriter reveal of assistant
// replies.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ziggy-ai/chat-client/internal/api"
	"github.com/ziggy-ai/chat-client/internal/model"
	"github.com/ziggy-ai/chat-client/internal/reveal"
	"github.com/ziggy-ai/chat-client/pkg/logger"
	"github.com/ziggy-ai/chat-client/pkg/metrics"
)

// Phase is the lifecycle phase of the active conversation.
type Phase string

const (
	// PhaseEmpty means no conversation is open.
	PhaseEmpty Phase = "empty"
	// PhaseDraft means messages exist locally but no backend id yet.
	PhaseDraft Phase = "draft"
	// PhaseBound means the conversation has a backend id and messages
	// sync to the backend.
	PhaseBound Phase = "bound"
)

const (
	// titleMaxChars is the truncation point for derived titles.
	titleMaxChars = 30

	// FallbackReply is appended verbatim when the completion call fails.
	FallbackReply = "Sorry, I'm having trouble connecting to my brain right now! 🤯"
)

var (
	// ErrSendInFlight is returned when Send (or a state-changing call) is
	// invoked while a prior Send is still outstanding. The component does
	// not queue; callers serialize.
	ErrSendInFlight = errors.New("a send is already in flight")

	// ErrEmptyMessage is returned for whitespace-only input.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrNotBound is returned for rename/delete on a conversation without
	// a backend id.
	ErrNotBound = errors.New("conversation has no backend session")

	// ErrAborted is returned when the caller cancelled the completion
	// request before its response arrived. The optimistic user message
	// stays; no fallback reply is appended.
	ErrAborted = api.ErrAborted
)

// Backend is the slice of the API client the state machine needs.
type Backend interface {
	ListMessages(ctx context.Context, id string) ([]model.Message, error)
	AppendMessage(ctx context.Context, id string, msg model.Message) error
	Ask(ctx context.Context, message, systemPrompt string) (string, error)
}

// Sessions is the slice of the session store the state machine needs.
type Sessions interface {
	Create(ctx context.Context, title string) (model.SessionSummary, error)
	Rename(ctx context.Context, id, title string) error
	Remove(ctx context.Context, id string) error
	UpdatePreview(id, text string)
}

// SendOptions carries per-send context forwarded into the system prompt
// and the reveal.
type SendOptions struct {
	UserName    string
	Mode        model.Mode
	Attachments []model.Attachment

	// OnProgress receives each revealed prefix of the assistant reply.
	OnProgress reveal.ProgressFunc
}

// SendResult reports what a Send actually did. Persist failures are
// reported, never rolled back: the optimistic message stays visible.
type SendResult struct {
	UserMessage      model.Message
	AssistantMessage model.Message

	// Cancelled is true when the reveal was cut short; the assistant
	// message then holds exactly the revealed prefix.
	Cancelled bool

	// Fallback is true when the completion call failed and the assistant
	// message is the fixed fallback reply.
	Fallback bool

	SessionCreateFailed    bool
	UserPersistFailed      bool
	AssistantPersistFailed bool
}

// State tracks the active conversation. At most one Send may be in
// flight; concurrent Send returns ErrSendInFlight.
type State struct {
	backend  Backend
	sessions Sessions
	logger   *logger.Logger

	revealDelay time.Duration

	mu       sync.Mutex
	phase    Phase
	id       string
	title    string
	messages []model.Message
	sending  bool
	typing   bool
	ctl      *reveal.Controller
}

// Option configures a State.
type Option func(*State)

// WithRevealDelay sets the per-character reveal delay.
func WithRevealDelay(d time.Duration) Option {
	return func(s *State) { s.revealDelay = d }
}

// NewState creates a State in the Empty phase.
func NewState(backend Backend, sessions Sessions, log *logger.Logger, opts ...Option) *State {
	s := &State{
		backend:     backend,
		sessions:    sessions,
		logger:      log,
		revealDelay: 15 * time.Millisecond,
		phase:       PhaseEmpty,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Phase returns the current lifecycle phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// ID returns the backend session id, or "" before binding.
func (s *State) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Title returns the conversation title.
func (s *State) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// Messages returns a copy of the message list in chronological order.
func (s *State) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Typing reports whether an assistant reply is pending or revealing.
func (s *State) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

// StartNew discards the active conversation and returns to Empty. No
// backend side effects.
func (s *State) StartNew() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseEmpty
	s.id = ""
	s.title = ""
	s.messages = nil
}

// CancelReveal cuts the in-flight typewriter reveal short. The partially
// revealed text becomes the final assistant message. Safe to call at any
// time; a no-op when nothing is revealing.
func (s *State) CancelReveal() {
	s.mu.Lock()
	ctl := s.ctl
	s.mu.Unlock()
	if ctl != nil {
		ctl.Cancel()
	}
}

// Send appends the user's message optimistically, materializes a backend
// session if needed, persists what it can, invokes the completion
// service, and reveals the reply. See SendResult for the failure
// reporting; only an empty message, a concurrent send, or a caller abort
// fail the call outright.
func (s *State) Send(ctx context.Context, text string, opts SendOptions) (SendResult, error) {
	if isBlank(text) || !utf8.ValidString(text) {
		return SendResult{}, ErrEmptyMessage
	}
	if !opts.Mode.Valid() {
		opts.Mode = model.ModeNone
	}

	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return SendResult{}, ErrSendInFlight
	}
	s.sending = true

	userMsg := model.Message{
		ID:          uuid.New().String(),
		Role:        model.RoleUser,
		Content:     text,
		Attachments: opts.Attachments,
		CreatedAt:   time.Now(),
	}

	// Optimistic append before any network round trip.
	s.messages = append(s.messages, userMsg)
	if s.phase == PhaseEmpty {
		s.phase = PhaseDraft
		s.title = DeriveTitle(text)
	}
	title := s.title
	needsSession := s.id == ""
	s.mu.Unlock()

	metrics.MessagesSent.WithLabelValues(string(model.RoleUser)).Inc()

	result := SendResult{UserMessage: userMsg}
	defer func() {
		s.mu.Lock()
		s.sending = false
		s.typing = false
		s.ctl = nil
		s.mu.Unlock()
	}()

	// Materialize the backend session. Failure keeps the conversation a
	// draft: the message stays visible locally only.
	if needsSession {
		sum, err := s.sessions.Create(ctx, title)
		if err != nil {
			s.logger.Warn("session create failed, staying draft", zap.Error(err))
			result.SessionCreateFailed = true
		} else {
			s.mu.Lock()
			s.id = sum.ID
			s.phase = PhaseBound
			s.mu.Unlock()
		}
	}

	id := s.ID()
	if id != "" {
		if err := s.backend.AppendMessage(ctx, id, userMsg); err != nil {
			// Logged, not rolled back; there is no automatic retry.
			s.logger.Warn("user message persist failed",
				zap.String("session_id", id), zap.Error(err))
			result.UserPersistFailed = true
		}
	}

	s.mu.Lock()
	s.typing = true
	s.mu.Unlock()

	replyText, err := s.backend.Ask(ctx, text, BuildSystemPrompt(opts.UserName, opts.Mode))
	if err != nil {
		if errors.Is(err, api.ErrAborted) || ctx.Err() != nil {
			return result, fmt.Errorf("completion aborted: %w", ErrAborted)
		}
		s.logger.Warn("completion failed, using fallback reply", zap.Error(err))
		metrics.FallbackReplies.Inc()
		result.Fallback = true
		result.AssistantMessage, _ = s.commitAssistant(ctx, FallbackReply, id, false)
		return result, nil
	}

	ctl := reveal.NewController()
	s.mu.Lock()
	s.ctl = ctl
	s.mu.Unlock()

	// The caller's context governs the ask call only. Once the reply is
	// in hand, the reveal and the final commit run detached from it;
	// CancelReveal is the one way to cut the reveal short.
	detached := context.WithoutCancel(ctx)

	revealStart := time.Now()
	revealed := ctl.Reveal(detached, replyText, s.revealDelay, opts.OnProgress)
	result.Cancelled = ctl.Cancelled()
	metrics.RecordReveal(result.Cancelled, time.Since(revealStart).Seconds())

	var persisted bool
	result.AssistantMessage, persisted = s.commitAssistant(detached, revealed, id, true)
	result.AssistantPersistFailed = id != "" && !persisted
	return result, nil
}

// commitAssistant appends the final assistant message, optionally
// persists it, and refreshes the session preview. It reports whether
// persistence succeeded.
func (s *State) commitAssistant(ctx context.Context, content, id string, persist bool) (model.Message, bool) {
	msg := model.Message{
		ID:        uuid.New().String(),
		Role:      model.RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.typing = false
	s.mu.Unlock()

	metrics.MessagesSent.WithLabelValues(string(model.RoleAssistant)).Inc()

	persisted := true
	if persist && id != "" {
		if err := s.backend.AppendMessage(ctx, id, msg); err != nil {
			s.logger.Warn("assistant message persist failed",
				zap.String("session_id", id), zap.Error(err))
			persisted = false
		}
	}

	if id != "" {
		s.sessions.UpdatePreview(id, content)
	}
	return msg, persisted
}

// LoadExisting opens a known session: fetches its full message list and
// binds to its id. The state is unchanged on failure.
func (s *State) LoadExisting(ctx context.Context, sum model.SessionSummary) error {
	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	s.mu.Unlock()

	msgs, err := s.backend.ListMessages(ctx, sum.ID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", sum.ID, err)
	}

	s.mu.Lock()
	s.phase = PhaseBound
	s.id = sum.ID
	s.title = sum.Title
	s.messages = msgs
	s.mu.Unlock()
	return nil
}

// Rename persists a new title for the bound session and updates local
// state. A no-op for empty or unchanged titles.
func (s *State) Rename(ctx context.Context, newTitle string) error {
	s.mu.Lock()
	if s.phase != PhaseBound {
		s.mu.Unlock()
		return ErrNotBound
	}
	if newTitle == "" || newTitle == s.title {
		s.mu.Unlock()
		return nil
	}
	id := s.id
	s.mu.Unlock()

	if err := s.sessions.Rename(ctx, id, newTitle); err != nil {
		return err
	}

	s.mu.Lock()
	s.title = newTitle
	s.mu.Unlock()
	return nil
}

// Delete removes the bound session from the backend and the session
// store, then returns to Empty. The state is unchanged on failure.
func (s *State) Delete(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseBound {
		s.mu.Unlock()
		return ErrNotBound
	}
	id := s.id
	s.mu.Unlock()

	if err := s.sessions.Remove(ctx, id); err != nil {
		return err
	}

	s.StartNew()
	return nil
}

// DeriveTitle builds a session title from the first user message: the
// first 30 characters, with an ellipsis when truncated.
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= titleMaxChars {
		return text
	}
	return string(runes[:titleMaxChars]) + "..."
}

// BuildSystemPrompt assembles the instruction string sent with every
// completion request.
func BuildSystemPrompt(userName string, mode model.Mode) string {
	if userName == "" {
		userName = "Explorer"
	}
	return fmt.Sprintf("You are Ziggy, a helpful and cute AI assistant. The user's name is %s.%s",
		userName, mode.PromptClause())
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
