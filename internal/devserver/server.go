// Package devserver implements the local chat backend: the HTTP contract
// the client consumes, backed by an in-memory store and a pluggable
// completion provider. It exists for offline development and end-to-end
// tests.
package devserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ziggy-ai/chat-client/internal/llm"
	"github.com/ziggy-ai/chat-client/pkg/logger"
)

// Options configures the server.
type Options struct {
	JWTSecret         string
	JWTTTL            time.Duration
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Server holds the dev backend's wiring.
type Server struct {
	store    *Store
	provider llm.Provider
	events   *EventPublisher
	logger   *logger.Logger

	jwtSecret string
	jwtTTL    time.Duration

	rateLimitRequests int
	rateLimitWindow   time.Duration
}

// New creates a server. events may be nil to disable NATS publishing.
func New(store *Store, provider llm.Provider, events *EventPublisher, log *logger.Logger, opts Options) *Server {
	if opts.JWTTTL <= 0 {
		opts.JWTTTL = 12 * time.Hour
	}
	if opts.RateLimitRequests <= 0 {
		opts.RateLimitRequests = 60
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = time.Minute
	}
	return &Server{
		store:             store,
		provider:          provider,
		events:            events,
		logger:            log,
		jwtSecret:         opts.JWTSecret,
		jwtTTL:            opts.JWTTTL,
		rateLimitRequests: opts.RateLimitRequests,
		rateLimitWindow:   opts.RateLimitWindow,
	}
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogging(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(s.rateLimitRequests, s.rateLimitWindow))
		r.Post("/login", s.handleLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth(s.jwtSecret))
		r.Use(rateLimit(s.rateLimitRequests, s.rateLimitWindow))

		r.Route("/chat/history", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", s.handleRenameSession)
				r.Delete("/", s.handleDeleteSession)
				r.Get("/messages", s.handleListMessages)
				r.Post("/messages", s.handleAppendMessage)
			})
		})

		r.Post("/ask", s.handleAsk)
	})

	return r
}
