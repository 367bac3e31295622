// Chartsmith is the chart workspace revisioning and plan execution
// service. It stores workspace files in SQLite, exposes an HTTP and
// websocket API, and applies plans by driving an LLM tool-call loop
// through the text editor backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chartsmith/internal/api"
	"chartsmith/pkg/config"
	"chartsmith/pkg/editor"
	"chartsmith/pkg/llm"
	"chartsmith/pkg/logx"
	"chartsmith/pkg/metrics"
	"chartsmith/pkg/persistence"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to JSON config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "chartsmith: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	logger := logx.NewLogger("chartsmith")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if err := persistence.Initialize(cfg.DBPath); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() { _ = persistence.Close() }()
	ops := persistence.Ops()

	backend, err := buildBackend(cfg, ops, logger)
	if err != nil {
		return err
	}

	llmClient, err := buildLLMClient(cfg, logger)
	if err != nil {
		return err
	}

	var query *metrics.QueryService
	if cfg.PrometheusURL != "" {
		query, err = metrics.NewQueryService(cfg.PrometheusURL)
		if err != nil {
			return fmt.Errorf("failed to create metrics query service: %w", err)
		}
	}

	server := api.NewServer(api.Options{
		Ops:       ops,
		Backend:   backend,
		LLMClient: llmClient,
		Query:     query,
		APIToken:  cfg.APIToken,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		logger.Info("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadConfig(configPath)
	}
	return config.DefaultConfig()
}

// buildBackend selects the mutation backend. A configured remote URL
// routes mutations through the remote editor service, otherwise the
// in-process store-backed engine is used.
func buildBackend(cfg *config.Config, ops *persistence.DatabaseOperations, logger *logx.Logger) (editor.FileMutationBackend, error) {
	if cfg.Editor.RemoteURL != "" {
		logger.Info("using remote editor backend at %s", cfg.Editor.RemoteURL)
		return editor.NewRemoteBackend(cfg.Editor.RemoteURL, cfg.Editor.Token), nil
	}
	return editor.NewEngine(ops), nil
}

// buildLLMClient creates the model client when an API key is
// configured. Without a key the service still runs, but plan
// application is unavailable.
func buildLLMClient(cfg *config.Config, logger *logx.Logger) (llm.Client, error) {
	if cfg.LLM.APIKey == "" {
		logger.Warn("no LLM API key configured, plan application disabled")
		return nil, nil
	}
	client, err := llm.NewClient(llm.Provider(cfg.LLM.Provider), cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return client, nil
}
