package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"codeassist/internal/assistant"
	"codeassist/internal/config"
	"codeassist/internal/httpserver"
	"codeassist/internal/llm"
	"codeassist/internal/transport"
	"log/slog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.LogLevel)

	httpClient := transport.NewHTTPClient(cfg.RequestTimeout)

	var llmClient llm.Client
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		llmClient = llm.NewAnthropicClient(cfg.Anthropic, cfg.Assistant, httpClient)
	default:
		llmClient = llm.NewOpenRouterClient(cfg.OpenRouter, cfg.Assistant, httpClient, logger)
	}

	history := assistant.NewMemoryHistoryStore(cfg.HistoryTTL)
	service := assistant.NewService(assistant.ServiceConfig{
		Client:   llmClient,
		History:  history,
		Settings: cfg.Assistant,
		CacheTTL: cfg.CacheTTL,
		Logger:   logger,
	})
	defer service.Close()

	handler := httpserver.NewHandler(httpserver.HandlerDeps{
		Service: service,
		Logger:  logger,
	})

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Logger:       logger,
		Handler:      handler,
		ServiceToken: cfg.ServiceToken,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", slog.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	slogLevel := slog.LevelInfo
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
