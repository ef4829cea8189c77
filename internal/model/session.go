package model

import (
	"time"
)

// SessionSummary is the lightweight listing representation of a chat
// session. The full message list is fetched separately when a session is
// opened.
type SessionSummary struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	LastMessagePreview string    `json:"last_message_preview,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// CreateSessionRequest is the request to create a new session.
type CreateSessionRequest struct {
	Title string `json:"title"`
}

// UpdateSessionRequest is the request to rename a session.
type UpdateSessionRequest struct {
	Title string `json:"title"`
}

// LoginRequest is the request body for authentication.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the authentication response.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	UserName     string `json:"user_name"`
	RefreshToken string `json:"refresh_token,omitempty"`
}
