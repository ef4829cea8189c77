package conversation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziggy-ai/chat-client/internal/api"
	"github.com/ziggy-ai/chat-client/internal/conversation"
	"github.com/ziggy-ai/chat-client/internal/model"
	"github.com/ziggy-ai/chat-client/pkg/logger"
)

type appendCall struct {
	id  string
	msg model.Message
}

type fakeBackend struct {
	listFn   func(ctx context.Context, id string) ([]model.Message, error)
	appendFn func(ctx context.Context, id string, msg model.Message) error
	askFn    func(ctx context.Context, message, systemPrompt string) (string, error)

	appends []appendCall
}

func (f *fakeBackend) ListMessages(ctx context.Context, id string) ([]model.Message, error) {
	if f.listFn != nil {
		return f.listFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeBackend) AppendMessage(ctx context.Context, id string, msg model.Message) error {
	f.appends = append(f.appends, appendCall{id: id, msg: msg})
	if f.appendFn != nil {
		return f.appendFn(ctx, id, msg)
	}
	return nil
}

func (f *fakeBackend) Ask(ctx context.Context, message, systemPrompt string) (string, error) {
	if f.askFn != nil {
		return f.askFn(ctx, message, systemPrompt)
	}
	return "Hi there", nil
}

type fakeSessions struct {
	createFn func(ctx context.Context, title string) (model.SessionSummary, error)
	renameFn func(ctx context.Context, id, title string) error
	removeFn func(ctx context.Context, id string) error

	previews map[string]string
	renames  map[string]string
	removed  []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		previews: make(map[string]string),
		renames:  make(map[string]string),
	}
}

func (f *fakeSessions) Create(ctx context.Context, title string) (model.SessionSummary, error) {
	if f.createFn != nil {
		return f.createFn(ctx, title)
	}
	return model.SessionSummary{ID: "s1", Title: title, CreatedAt: time.Now()}, nil
}

func (f *fakeSessions) Rename(ctx context.Context, id, title string) error {
	if f.renameFn != nil {
		if err := f.renameFn(ctx, id, title); err != nil {
			return err
		}
	}
	f.renames[id] = title
	return nil
}

func (f *fakeSessions) Remove(ctx context.Context, id string) error {
	if f.removeFn != nil {
		if err := f.removeFn(ctx, id); err != nil {
			return err
		}
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeSessions) UpdatePreview(id, text string) {
	f.previews[id] = text
}

func newState(backend *fakeBackend, sessions *fakeSessions) *conversation.State {
	return conversation.NewState(backend, sessions, logger.Nop(),
		conversation.WithRevealDelay(0))
}

func TestSendAppendsUserMessageBeforeAnyNetworkCall(t *testing.T) {
	backend := &fakeBackend{}
	sessions := newFakeSessions()
	state := newState(backend, sessions)

	sessions.createFn = func(ctx context.Context, title string) (model.SessionSummary, error) {
		msgs := state.Messages()
		require.Len(t, msgs, 1, "user message must be visible before session create")
		assert.Equal(t, model.RoleUser, msgs[0].Role)
		assert.Equal(t, "Hello", msgs[0].Content)
		return model.SessionSummary{ID: "s1", Title: title}, nil
	}

	_, err := state.Send(context.Background(), "Hello", conversation.SendOptions{})
	require.NoError(t, err)
}

func TestSendTransitionsEmptyToDraftToBound(t *testing.T) {
	backend := &fakeBackend{}
	sessions := newFakeSessions()
	state := newState(backend, sessions)

	require.Equal(t, conversation.PhaseEmpty, state.Phase())

	sessions.createFn = func(ctx context.Context, title string) (model.SessionSummary, error) {
		// Draft until the backend assigns an id.
		assert.Equal(t, conversation.PhaseDraft, state.Phase())
		return model.SessionSummary{ID: "s1", Title: title}, nil
	}

	_, err := state.Send(context.Background(), "Hello", conversation.SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, conversation.PhaseBound, state.Phase())
	assert.Equal(t, "s1", state.ID())
}

func TestFailedSessionCreateStaysDraft(t *testing.T) {
	backend := &fakeBackend{}
	sessions := newFakeSessions()
	sessions.createFn = func(ctx context.Context, title string) (model.SessionSummary, error) {
		return model.SessionSummary{}, errors.New("backend down")
	}
	state := newState(backend, sessions)

	result, err := state.Send(context.Background(), "Hello", conversation.SendOptions{})
	require.NoError(t, err)

	assert.True(t, result.SessionCreateFailed)
	assert.Equal(t, conversation.PhaseDraft, state.Phase())
	assert.Empty(t, state.ID())
	// Nothing is persisted while unbound, but the reply still arrives.
	assert.Empty(t, backend.appends)
	require.Len(t, state.Messages(), 2)
	assert.Equal(t, "Hi there", state.Messages()[1].Content)
	assert.Empty(t, sessions.previews)
}

func TestScenarioFullSend(t *testing.T) {
	backend := &fakeBackend{}
	sessions := newFakeSessions()
	state := newState(backend, sessions)

	var prefixes []string
	result, err := state.Send(context.Background(), "Hello", conversation.SendOptions{
		UserName: "Jane Doe",
		OnProgress: func(p string) {
			prefixes = append(prefixes, p)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, conversation.PhaseBound, state.Phase())
	assert.Equal(t, "s1", state.ID())
	assert.Equal(t, "Hello", state.Title())

	// Reveal grows one character at a time up to the full reply.
	require.Len(t, prefixes, len("Hi there"))
	assert.Equal(t, "H", prefixes[0])
	assert.Equal(t, "Hi", prefixes[1])
	assert.Equal(t, "Hi there", prefixes[len(prefixes)-1])

	require.Len(t, state.Messages(), 2)
	assert.Equal(t, "Hi there", result.AssistantMessage.Content)
	assert.False(t, result.Cancelled)
	assert.False(t, result.Fallback)
	assert.False(t, state.Typing())

	// User and assistant messages both persisted under s1.
	require.Len(t, backend.appends, 2)
	assert.Equal(t, model.RoleUser, backend.appends[0].msg.Role)
	assert.Equal(t, model.RoleAssistant, backend.appends[1].msg.Role)
	assert.Equal(t, "s1", backend.appends[0].id)

	assert.Equal(t, "Hi there", sessions.previews["s1"])
}

func TestScenarioCancelledReveal(t *testing.T) {
	backend := &fakeBackend{}
	sessions := newFakeSessions()
	state := newState(backend, sessions)

	var prefixes []string
	result, err := state.Send(context.Background(), "Hello", conversation.SendOptions{
		OnProgress: func(p string) {
			prefixes = append(prefixes, p)
			if len(prefixes) == 2 {
				state.CancelReveal()
			}
		},
	})
	require.NoError(t, err)

	assert.True(t, result.Cancelled)
	assert.Equal(t, "Hi", result.AssistantMessage.Content)
	assert.Len(t, prefixes, 2, "reveal must stop within one character step")

	// The frozen prefix is what gets persisted and previewed.
	require.Len(t, backend.appends, 2)
	assert.Equal(t, "Hi", backend.appends[1].msg.Content)
	assert.Equal(t, "Hi", sessions.previews["s1"])
}

func TestScenarioCompletionFailure(t *testing.T) {
	backend := &fakeBackend{
		askFn: func(ctx context.Context, message, systemPrompt string) (string, error) {
			return "", errors.New("brain offline")
		},
	}
	sessions := newFakeSessions()
	state := newState(backend, sessions)

	progressed := false
	result, err := state.Send(context.Background(), "Hello", conversation.SendOptions{
		OnProgress: func(string) { progressed = true },
	})
	require.NoError(t, err)

	assert.True(t, result.Fallback)
	assert.False(t, progressed, "no reveal on completion failure")
	assert.Equal(t, conversation.FallbackReply, result.AssistantMessage.Content)
	assert.False(t, state.Typing())

	msgs := state.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.FallbackReply, msgs[1].Content)
}

func TestScenarioRename(t *testing.T) {
	backend := &fakeBackend{}
	sessions := newFakeSessions()
	state := newState(backend, sessions)

	require.NoError(t, state.LoadExisting(context.Background(), model.SessionSummary{
		ID: "s1", Title: "Old Title",
	}))

	require.NoError(t, state.Rename(context.Background(), "New Title"))
	assert.Equal(t, "New Title", state.Title())
	assert.Equal(t, "New Title", sessions.renames["s1"])

	// Backend failure leaves both sides unchanged.
	sessions.renameFn = func(ctx context.Context, id, title string) error {
		return errors.New("backend returned 500")
	}
	require.Error(t, state.Rename(context.Background(), "Broken"))
	assert.Equal(t, "New Title", state.Title())
	assert.Equal(t, "New Title", sessions.renames["s1"])
}

func TestRenameNoopForEmptyOrUnchangedTitle(t *testing.T) {
	backend := &fakeBackend{}
	sessions := newFakeSessions()
	state := newState(backend, sessions)

	require.NoError(t, state.LoadExisting(context.Background(), model.SessionSummary{
		ID: "s1", Title: "Same",
	}))

	require.NoError(t, state.Rename(context.Background(), ""))
	require.NoError(t, state.Rename(context.Background(), "Same"))
	assert.Empty(t, sessions.renames)
}

func TestRenameAndDeleteRequireBound(t *testing.T) {
	state := newState(&fakeBackend{}, newFakeSessions())

	assert.ErrorIs(t, state.Rename(context.Background(), "X"), conversation.ErrNotBound)
	assert.ErrorIs(t, state.Delete(context.Background()), conversation.ErrNotBound)
}

func TestDeleteReturnsToEmpty(t *testing.T) {
	backend := &fakeBackend{}
	sessions := newFakeSessions()
	state := newState(backend, sessions)

	require.NoError(t, state.LoadExisting(context.Background(), model.SessionSummary{
		ID: "s1", Title: "T",
	}))
	require.NoError(t, state.Delete(context.Background()))

	assert.Equal(t, []string{"s1"}, sessions.removed)
	assert.Equal(t, conversation.PhaseEmpty, state.Phase())
	assert.Empty(t, state.ID())
	assert.Empty(t, state.Messages())
}

func TestLoadExistingFailureLeavesStateUnchanged(t *testing.T) {
	backend := &fakeBackend{
		listFn: func(ctx context.Context, id string) ([]model.Message, error) {
			return nil, errors.New("not found")
		},
	}
	state := newState(backend, newFakeSessions())

	err := state.LoadExisting(context.Background(), model.SessionSummary{ID: "s9"})
	require.Error(t, err)
	assert.Equal(t, conversation.PhaseEmpty, state.Phase())
	assert.Empty(t, state.ID())
}

func TestPersistFailureDoesNotRollBackOptimisticMessage(t *testing.T) {
	backend := &fakeBackend{
		appendFn: func(ctx context.Context, id string, msg model.Message) error {
			if msg.Role == model.RoleUser {
				return errors.New("persist failed")
			}
			return nil
		},
	}
	sessions := newFakeSessions()
	state := newState(backend, sessions)

	result, err := state.Send(context.Background(), "Hello", conversation.SendOptions{})
	require.NoError(t, err)

	assert.True(t, result.UserPersistFailed)
	assert.False(t, result.AssistantPersistFailed)
	require.Len(t, state.Messages(), 2)
	assert.Equal(t, "Hello", state.Messages()[0].Content)
}

func TestCallerCancelMidRevealDoesNotTruncateReply(t *testing.T) {
	backend := &fakeBackend{}
	sessions := newFakeSessions()
	state := newState(backend, sessions)

	// The send context covers the completion call only. Cancelling it
	// while the reply is revealing must not freeze the reveal, and the
	// full reply must still be committed and persisted.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var prefixes []string
	result, err := state.Send(ctx, "Hello", conversation.SendOptions{
		OnProgress: func(p string) {
			prefixes = append(prefixes, p)
			cancel()
		},
	})
	require.NoError(t, err)

	assert.False(t, result.Cancelled)
	assert.Equal(t, "Hi there", result.AssistantMessage.Content)
	assert.Len(t, prefixes, len("Hi there"))

	require.Len(t, backend.appends, 2)
	assert.Equal(t, "Hi there", backend.appends[1].msg.Content)
	assert.False(t, result.AssistantPersistFailed)
	assert.Equal(t, "Hi there", sessions.previews["s1"])
}

func TestSendAbortedLeavesNoFallback(t *testing.T) {
	backend := &fakeBackend{
		askFn: func(ctx context.Context, message, systemPrompt string) (string, error) {
			return "", api.ErrAborted
		},
	}
	state := newState(backend, newFakeSessions())

	_, err := state.Send(context.Background(), "Hello", conversation.SendOptions{})
	assert.ErrorIs(t, err, conversation.ErrAborted)

	// The optimistic user message stays; nothing else was appended.
	msgs := state.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.False(t, state.Typing())
}

func TestSendRejectsConcurrentInvocation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := &fakeBackend{
		askFn: func(ctx context.Context, message, systemPrompt string) (string, error) {
			close(started)
			<-release
			return "ok", nil
		},
	}
	state := newState(backend, newFakeSessions())

	done := make(chan error, 1)
	go func() {
		_, err := state.Send(context.Background(), "first", conversation.SendOptions{})
		done <- err
	}()

	<-started
	_, err := state.Send(context.Background(), "second", conversation.SendOptions{})
	assert.ErrorIs(t, err, conversation.ErrSendInFlight)

	close(release)
	require.NoError(t, <-done)
}

func TestSendRejectsBlankInput(t *testing.T) {
	state := newState(&fakeBackend{}, newFakeSessions())

	_, err := state.Send(context.Background(), "   \n\t", conversation.SendOptions{})
	assert.ErrorIs(t, err, conversation.ErrEmptyMessage)
	assert.Equal(t, conversation.PhaseEmpty, state.Phase())
}

func TestStartNewDiscardsConversation(t *testing.T) {
	backend := &fakeBackend{}
	sessions := newFakeSessions()
	state := newState(backend, sessions)

	_, err := state.Send(context.Background(), "Hello", conversation.SendOptions{})
	require.NoError(t, err)

	state.StartNew()
	assert.Equal(t, conversation.PhaseEmpty, state.Phase())
	assert.Empty(t, state.Messages())
	assert.Empty(t, state.Title())
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short text unchanged", "Hello", "Hello"},
		{"exactly thirty chars unchanged", "123456789012345678901234567890", "123456789012345678901234567890"},
		{"long text truncated", "1234567890123456789012345678901", "123456789012345678901234567890..."},
		{"multibyte counted as characters", "ααααααααααααααααααααααααααααααα", "αααααααααααααααααααααααααααααα..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, conversation.DeriveTitle(tt.in))
		})
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	p := conversation.BuildSystemPrompt("Jane", model.ModeStudy)
	assert.Contains(t, p, "The user's name is Jane.")
	assert.Contains(t, p, "study mode")

	plain := conversation.BuildSystemPrompt("", model.ModeNone)
	assert.Contains(t, plain, "Explorer")
	assert.NotContains(t, plain, "mode")
}
