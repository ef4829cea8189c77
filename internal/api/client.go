// Package api implements the HTTP client for the chat backend: session
// history CRUD, message persistence, completion, and login.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ziggy-ai/chat-client/internal/credentials"
	"github.com/ziggy-ai/chat-client/internal/model"
	"github.com/ziggy-ai/chat-client/pkg/logger"
	"github.com/ziggy-ai/chat-client/pkg/metrics"
)

const (
	// DefaultTimeout is the default timeout for backend requests. The
	// completion call inherits it so a hung backend cannot leave the
	// caller typing forever.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize caps response bodies read into memory.
	MaxResponseSize = 10 * 1024 * 1024
)

var (
	// ErrUnauthenticated indicates a missing or rejected access token.
	// Callers redirect to the login flow rather than retry.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrAborted indicates the request was cancelled by the caller before
	// a response arrived. Not a transport failure.
	ErrAborted = errors.New("request aborted")
)

// sharedHTTPClient pools connections across all backend calls.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
	Timeout: DefaultTimeout,
}

// Client talks to the chat backend. The access token is read from the
// credential store on every call, never cached.
type Client struct {
	baseURL string
	http    *http.Client
	creds   credentials.Store
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL string, creds credentials.Store, log *logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    sharedHTTPClient,
		creds:   creds,
		logger:  log,
		tracer:  otel.Tracer("chat-client/api"),
	}
}

// Login authenticates and returns the token bundle. It does not store the
// result; that is the caller's decision.
func (c *Client) Login(ctx context.Context, email, password string) (model.LoginResponse, error) {
	var resp model.LoginResponse
	err := c.do(ctx, "login", http.MethodPost, "/login", false, model.LoginRequest{
		Email:    email,
		Password: password,
	}, &resp)
	return resp, err
}

// ListSessions fetches all session summaries, server order preserved.
func (c *Client) ListSessions(ctx context.Context) ([]model.SessionSummary, error) {
	var resp []model.SessionSummary
	err := c.do(ctx, "list_sessions", http.MethodGet, "/chat/history", true, nil, &resp)
	return resp, err
}

// CreateSession creates a session and returns the summary with its
// server-assigned id.
func (c *Client) CreateSession(ctx context.Context, title string) (model.SessionSummary, error) {
	var resp model.SessionSummary
	err := c.do(ctx, "create_session", http.MethodPost, "/chat/history", true, model.CreateSessionRequest{
		Title: title,
	}, &resp)
	return resp, err
}

// RenameSession updates a session title.
func (c *Client) RenameSession(ctx context.Context, id, title string) (model.SessionSummary, error) {
	var resp model.SessionSummary
	err := c.do(ctx, "rename_session", http.MethodPatch, "/chat/history/"+id, true, model.UpdateSessionRequest{
		Title: title,
	}, &resp)
	return resp, err
}

// DeleteSession deletes a session permanently.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, "delete_session", http.MethodDelete, "/chat/history/"+id, true, nil, nil)
}

// ListMessages fetches the full message list for a session.
func (c *Client) ListMessages(ctx context.Context, id string) ([]model.Message, error) {
	var resp []model.Message
	err := c.do(ctx, "list_messages", http.MethodGet, "/chat/history/"+id+"/messages", true, nil, &resp)
	return resp, err
}

// AppendMessage persists a message under a session.
func (c *Client) AppendMessage(ctx context.Context, id string, msg model.Message) error {
	return c.do(ctx, "append_message", http.MethodPost, "/chat/history/"+id+"/messages", true, msg, nil)
}

// Ask requests a completion for the given message and system prompt and
// returns the full reply text.
func (c *Client) Ask(ctx context.Context, message, systemPrompt string) (string, error) {
	var resp model.AskResponse
	err := c.do(ctx, "ask", http.MethodPost, "/ask", true, model.AskRequest{
		Message:      message,
		SystemPrompt: systemPrompt,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// errorBody is the backend's JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, operation, method, path string, authed bool, in, out any) error {
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "backend."+operation,
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		))
	defer span.End()

	status, err := c.roundTrip(ctx, method, path, authed, in, out)

	outcome := "success"
	switch {
	case errors.Is(err, ErrUnauthenticated):
		outcome = "unauthenticated"
	case errors.Is(err, ErrAborted):
		outcome = "aborted"
	case err != nil:
		outcome = "error"
	}
	metrics.RecordBackendRequest(operation, outcome, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		c.logger.Debug("backend request failed",
			zap.String("operation", operation),
			zap.Int("status", status),
			zap.Error(err),
		)
		return err
	}

	c.logger.Debug("backend request completed",
		zap.String("operation", operation),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, authed bool, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authed {
		creds, err := c.creds.Get()
		if err != nil || creds.AccessToken == "" {
			return 0, ErrUnauthenticated
		}
		req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		}
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, ErrUnauthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			return resp.StatusCode, fmt.Errorf("backend returned %d: %s", resp.StatusCode, eb.Error)
		}
		return resp.StatusCode, fmt.Errorf("backend returned %d", resp.StatusCode)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
