/*
Package main is the entry point for the tcpchat server.

It is responsible for loading configuration, initializing the global logging system,
starting the TCP chat listener and the optional ops HTTP server, and gracefully handling
operating system interrupt signals (SIGINT, SIGTERM) so that every connected user is
notified before the process exits.
*/
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

	"golang.org/x/sync/errgroup"

	"tcpchat/internal/app/audit"
	"tcpchat/internal/app/chat"
	"tcpchat/internal/configs"
	"tcpchat/internal/handler"
	"tcpchat/internal/pkg/logx"
)

// auditQueueSize is the number of audit events buffered before new ones are dropped.
const auditQueueSize = 1024

func main() {
	// Load configuration from environment variables and flags
	cfg, err := configs.LoadConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Str("chat_addr", cfg.ChatAddr()).
		Bool("http_enabled", cfg.HTTPEnabled).
		Str("http_addr", cfg.HTTPAddr).
		Bool("audit_enabled", cfg.DatabaseDSN != "").
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder, closeStore := openRecorder(ctx, cfg)
	defer closeStore()

	registry := chat.NewRegistry()
	dispatcher := chat.NewDispatcher(registry, chat.WithRecorder(recorder))
	chatServer := chat.NewServer(registry, dispatcher, recorder, cfg.WriteTimeout)

	var httpServer *http.Server
	if cfg.HTTPEnabled {
		router := handler.Router(&handler.AppDeps{
			Chat:     chatServer,
			Registry: registry,
			Config:   cfg,
		})

		httpServer = &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := chatServer.ListenAndServe(cfg.ChatAddr()); err != nil && !errors.Is(err, chat.ErrServerClosed) {
			return fmt.Errorf("chat server: %w", err)
		}
		return nil
	})

	if httpServer != nil {
		g.Go(func() error {
			logx.Info(fmt.Sprintf("Ops HTTP server starting on http://%s", cfg.HTTPAddr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		// Wait for an interrupt signal or a failed listener, then shut everything down.
		<-gctx.Done()
		logx.Info("Starting graceful shutdown...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancelShutdown()

		var shutdownErrs []error
		if err := chatServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrs = append(shutdownErrs, fmt.Errorf("chat server shutdown: %w", err))
		}
		if httpServer != nil {
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				shutdownErrs = append(shutdownErrs, fmt.Errorf("http server shutdown: %w", err))
			}
		}
		if err := recorder.Close(shutdownCtx); err != nil {
			shutdownErrs = append(shutdownErrs, fmt.Errorf("audit recorder close: %w", err))
		}
		return errors.Join(shutdownErrs...)
	})

	if err := g.Wait(); err != nil {
		logx.Error(err, "Server stopped with errors")
		closeStore()
		os.Exit(1)
	}

	logx.Info("Server gracefully stopped.")
}

// openRecorder returns the Postgres-backed audit recorder when DATABASE_URL is set, and a
// no-op recorder otherwise. The returned func closes the underlying store.
func openRecorder(ctx context.Context, cfg *configs.AppConfig) (audit.Recorder, func()) {
	if cfg.DatabaseDSN == "" {
		return audit.NopRecorder{}, func() {}
	}

	store, err := audit.OpenPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to open audit database")
	}

	logx.Info("Audit trail enabled.")
	return audit.NewAsyncRecorder(store, auditQueueSize), store.Close
}
