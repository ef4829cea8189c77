package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziggy-ai/chat-client/internal/api"
	"github.com/ziggy-ai/chat-client/internal/credentials"
	"github.com/ziggy-ai/chat-client/internal/model"
	"github.com/ziggy-ai/chat-client/pkg/logger"
)

func authedStore(t *testing.T) credentials.Store {
	t.Helper()
	store := credentials.NewMemoryStore()
	require.NoError(t, store.Set(credentials.Credentials{
		AccessToken: "test-token",
		UserName:    "Jane Doe",
	}))
	return store
}

func TestAskSendsBearerTokenAndDecodesReply(t *testing.T) {
	var gotAuth string
	var gotReq model.AskRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ask", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(model.AskResponse{Response: "Hi there"})
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, authedStore(t), logger.Nop())
	reply, err := client.Ask(context.Background(), "Hello", "be nice")
	require.NoError(t, err)

	assert.Equal(t, "Hi there", reply)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "Hello", gotReq.Message)
	assert.Equal(t, "be nice", gotReq.SystemPrompt)
}

func TestMissingCredentialsFailWithoutARequest(t *testing.T) {
	requested := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = true
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, credentials.NewMemoryStore(), logger.Nop())
	_, err := client.ListSessions(context.Background())

	assert.ErrorIs(t, err, api.ErrUnauthenticated)
	assert.False(t, requested)
}

func TestRejectedTokenMapsToUnauthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, authedStore(t), logger.Nop())
	_, err := client.ListSessions(context.Background())
	assert.ErrorIs(t, err, api.ErrUnauthenticated)
}

func TestLoginIsUnauthenticatedEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "/login", r.URL.Path)

		var req model.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "jane@example.com", req.Email)

		json.NewEncoder(w).Encode(model.LoginResponse{
			AccessToken:  "at",
			UserName:     "Jane",
			RefreshToken: "rt",
		})
	}))
	defer srv.Close()

	// No stored credentials; login must still go through.
	client := api.NewClient(srv.URL, credentials.NewMemoryStore(), logger.Nop())
	resp, err := client.Login(context.Background(), "jane@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "at", resp.AccessToken)
	assert.Equal(t, "Jane", resp.UserName)
	assert.Equal(t, "rt", resp.RefreshToken)
}

func TestSessionRoutesUseContractPathsAndMethods(t *testing.T) {
	type hit struct{ method, path string }
	var hits []hit
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, hit{r.Method, r.URL.Path})
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/chat/history":
			json.NewEncoder(w).Encode([]model.SessionSummary{{ID: "s1"}})
		case r.Method == http.MethodGet && r.URL.Path == "/chat/history/s1/messages":
			json.NewEncoder(w).Encode([]model.Message{})
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			json.NewEncoder(w).Encode(model.SessionSummary{ID: "s1"})
		}
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, authedStore(t), logger.Nop())
	ctx := context.Background()

	_, err := client.ListSessions(ctx)
	require.NoError(t, err)
	_, err = client.CreateSession(ctx, "Title")
	require.NoError(t, err)
	_, err = client.RenameSession(ctx, "s1", "New")
	require.NoError(t, err)
	require.NoError(t, client.AppendMessage(ctx, "s1", model.Message{Role: model.RoleUser, Content: "hi"}))
	_, err = client.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, client.DeleteSession(ctx, "s1"))

	assert.Equal(t, []hit{
		{http.MethodGet, "/chat/history"},
		{http.MethodPost, "/chat/history"},
		{http.MethodPatch, "/chat/history/s1"},
		{http.MethodPost, "/chat/history/s1/messages"},
		{http.MethodGet, "/chat/history/s1/messages"},
		{http.MethodDelete, "/chat/history/s1"},
	}, hits)
}

func TestErrorEnvelopeIsSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "title exceeds maximum length"})
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, authedStore(t), logger.Nop())
	_, err := client.CreateSession(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title exceeds maximum length")
	assert.Contains(t, err.Error(), "400")
}

func TestCallerCancellationMapsToAborted(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client disconnect and
		// cancels the request context; otherwise srv.Close hangs.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	client := api.NewClient(srv.URL, authedStore(t), logger.Nop())
	_, err := client.Ask(ctx, "Hello", "")
	assert.ErrorIs(t, err, api.ErrAborted)
}

func TestCallerTimeoutMapsToAborted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := api.NewClient(srv.URL, authedStore(t), logger.Nop())
	_, err := client.Ask(ctx, "Hello", "")
	assert.ErrorIs(t, err, api.ErrAborted)
}
