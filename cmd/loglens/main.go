// LogLens server: ingests syslog events, scores them against the six risk
// criteria, runs windowed meta-analysis and serves the dashboard API.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/loglens/loglens/pkg/api"
	"github.com/loglens/loglens/pkg/cleanup"
	"github.com/loglens/loglens/pkg/config"
	"github.com/loglens/loglens/pkg/database"
	"github.com/loglens/loglens/pkg/llm"
	"github.com/loglens/loglens/pkg/pipeline"
	"github.com/loglens/loglens/pkg/store"
	"github.com/loglens/loglens/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("Starting LogLens", "version", version.Full(), "http_port", httpPort)

	ctx := context.Background()

	// 1. Database (migrations run on connect)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 2. Store and runtime config
	st := store.New(dbClient.DB())
	cfg := config.NewService(st)

	// 3. LLM client
	rpm, _ := strconv.Atoi(getEnv("LLM_REQUESTS_PER_MINUTE", "30"))
	llmClient := llm.NewOpenAIClient(rpm)

	// 4. Background services
	orchestrator := pipeline.New(st, cfg, llmClient, nil)
	orchestrator.Start(ctx)

	maintenance := cleanup.NewService(st, cfg, dbClient.DB())
	maintenance.Start(ctx)

	// 5. HTTP server
	server := api.NewServer(dbClient, st, cfg, llmClient)
	httpServer := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("LogLens started successfully")

	// 6. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 7. Graceful shutdown: stop the loops, then drain HTTP
	orchestrator.Stop()
	maintenance.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
