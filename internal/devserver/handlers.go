package devserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ziggy-ai/chat-client/internal/model"
)

// handleLogin handles POST /login. The dev backend accepts any non-empty
// email/password pair and derives the display name from the email.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	name := displayName(req.Email)
	token, err := issueToken(s.jwtSecret, req.Email, name, s.jwtTTL)
	if err != nil {
		s.logger.Error("failed to issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	refresh, err := issueToken(s.jwtSecret, req.Email, name, 30*24*time.Hour)
	if err != nil {
		s.logger.Error("failed to issue refresh token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, model.LoginResponse{
		AccessToken:  token,
		UserName:     name,
		RefreshToken: refresh,
	})
}

// handleListSessions handles GET /chat/history
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ListSessions(getUserID(r.Context())))
}

// handleCreateSession handles POST /chat/history
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req model.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateTitle(req.Title); err != "" {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	userID := getUserID(r.Context())
	sum := s.store.CreateSession(userID, req.Title)

	s.events.Publish(SubjectSessionCreated, LifecycleEvent{
		SessionID: sum.ID, UserID: userID, At: time.Now(),
	})
	writeJSON(w, http.StatusCreated, sum)
}

// handleRenameSession handles PATCH /chat/history/{id}
func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateTitle(req.Title); err != "" {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	userID := getUserID(r.Context())
	id := chi.URLParam(r, "id")
	sum, err := s.store.RenameSession(userID, id, req.Title)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	s.events.Publish(SubjectSessionRenamed, LifecycleEvent{
		SessionID: id, UserID: userID, At: time.Now(),
	})
	writeJSON(w, http.StatusOK, sum)
}

// handleDeleteSession handles DELETE /chat/history/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := getUserID(r.Context())
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteSession(userID, id); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	s.events.Publish(SubjectSessionDeleted, LifecycleEvent{
		SessionID: id, UserID: userID, At: time.Now(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleListMessages handles GET /chat/history/{id}/messages
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.ListMessages(getUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleAppendMessage handles POST /chat/history/{id}/messages
func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var msg model.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateContent(msg.Content); err != "" {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
		writeError(w, http.StatusBadRequest, "role must be user or assistant")
		return
	}

	userID := getUserID(r.Context())
	id := chi.URLParam(r, "id")
	stored, err := s.store.AppendMessage(userID, id, msg)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	s.events.Publish(SubjectMessageAppended, LifecycleEvent{
		SessionID: id, UserID: userID, Role: string(stored.Role), At: time.Now(),
	})
	writeJSON(w, http.StatusCreated, stored)
}

// handleAsk handles POST /ask
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req model.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateContent(req.Message); err != "" {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.logger.Debug("completion requested",
		zap.String("user", getUserName(r.Context())),
		zap.String("provider", s.provider.Name()))

	reply, err := s.provider.Complete(r.Context(), req.SystemPrompt, req.Message)
	if err != nil {
		s.logger.Error("completion failed",
			zap.String("provider", s.provider.Name()), zap.Error(err))
		writeError(w, http.StatusBadGateway, "completion failed")
		return
	}

	writeJSON(w, http.StatusOK, model.AskResponse{Response: reply})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func validateTitle(title string) string {
	if len(title) > 256 {
		return "title exceeds maximum length"
	}
	if !utf8.ValidString(title) {
		return "title must be valid UTF-8"
	}
	return ""
}

func validateContent(content string) string {
	if len(content) == 0 {
		return "content cannot be empty"
	}
	if len(content) > 100000 {
		return "content exceeds maximum length"
	}
	if !utf8.ValidString(content) {
		return "content must be valid UTF-8"
	}
	return ""
}

// displayName derives a friendly name from the email local part:
// "jane.doe@x" becomes "Jane Doe".
func displayName(email string) string {
	local := email
	if i := strings.IndexByte(email, '@'); i > 0 {
		local = email[:i]
	}
	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	if len(words) == 0 {
		return "Explorer"
	}
	return strings.Join(words, " ")
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
