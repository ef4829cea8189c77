// Package main is the entry point for the local chat backend.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ziggy-ai/chat-client/internal/config"
	"github.com/ziggy-ai/chat-client/internal/devserver"
	"github.com/ziggy-ai/chat-client/internal/llm"
	"github.com/ziggy-ai/chat-client/pkg/logger"
	"github.com/ziggy-ai/chat-client/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting dev backend")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "ziggy-devserver", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	events, err := devserver.ConnectEvents(cfg.NATSURL, cfg.NATSToken, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer events.Close()

	apiKey := cfg.AnthropicAPIKey
	if llm.Kind(cfg.DefaultLLM) == llm.KindOpenAI {
		apiKey = cfg.OpenAIAPIKey
	}
	provider, err := llm.New(llm.Kind(cfg.DefaultLLM), apiKey)
	if err != nil {
		log.Error("failed to create completion provider", zap.Error(err))
		os.Exit(1)
	}
	log.Info("completion provider ready", zap.String("provider", provider.Name()))

	srv := devserver.New(devserver.NewStore(), provider, events, log, devserver.Options{
		JWTSecret:         cfg.JWTSecret,
		JWTTTL:            cfg.JWTExpiration,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
