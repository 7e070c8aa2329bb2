// Package main runs the nia chat server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	httpapi "github.com/Fikei1151/nia/internal/adapters/http"
	"github.com/Fikei1151/nia/internal/adapters/llm/openai"
	"github.com/Fikei1151/nia/internal/adapters/repository"
	"github.com/Fikei1151/nia/internal/app/services"
	"github.com/Fikei1151/nia/internal/app/usecases"
	"github.com/Fikei1151/nia/internal/core/checkpoint"
	"github.com/Fikei1151/nia/internal/infrastructure/config"
	"github.com/Fikei1151/nia/internal/infrastructure/logging"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.App.LogLevel, cfg.App.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := repository.Bootstrap(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("checkpoint store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("failed to close checkpoint store", "error", closeErr)
		}
	}()
	logger.Info("checkpoint store ready", "backend", store.Backend)
	if !cfg.HasOpenAI() {
		logger.Warn("OPENAI_API_KEY is not set, chat requests will be answered with a configuration error")
	}

	srv := newServer(cfg, store, logger)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting nia server", "addr", cfg.App.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newServer(cfg *config.Config, store *repository.Store, logger *slog.Logger) *http.Server {
	chat := services.NewChatService(services.ResumerFactory(resumerFactory(cfg, store, logger)), logger)
	return &http.Server{
		Addr: cfg.App.Addr,
		Handler: httpapi.NewRouter(httpapi.Options{
			Chat:           chat,
			Store:          store,
			Logger:         logger,
			RequestTimeout: cfg.App.RequestTimeout,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// resumerFactory builds the resumer once. A failed build is remembered and
// reported on every request.
func resumerFactory(cfg *config.Config, saver checkpoint.Saver, logger *slog.Logger) func() (*usecases.Resumer, error) {
	return sync.OnceValues(func() (*usecases.Resumer, error) {
		model, err := openai.NewClient(cfg.OpenAI)
		if err != nil {
			return nil, &usecases.InitError{Component: "chat model", Err: err}
		}
		return usecases.NewResumer(usecases.ResumerConfig{
			Saver:  saver,
			Model:  model,
			Logger: logger,
		})
	})
}
