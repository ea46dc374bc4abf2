package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/chsco430/cardstore/internal/config"
	"github.com/chsco430/cardstore/internal/engine"
	"github.com/chsco430/cardstore/internal/server"
	"github.com/chsco430/cardstore/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")

	// config.MustLoad registers and parses the -config flag, covering
	// -healthcheck as well.
	cfg := config.MustLoad()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		resp, err := http.Get(fmt.Sprintf("http://localhost:%d/healthz", cfg.HTTPPort))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	logger := setupLogger(cfg)
	slog.SetDefault(logger)

	ledger, err := openLedger(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer ledger.Close()

	if cfg.Store.SeedDemo {
		if err := store.SeedDemo(context.Background(), ledger); err != nil {
			logger.Error("failed to seed store", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	trade := engine.NewTradeEngine(ledger, cfg.UnitPriceCents)
	auth := engine.NewAuthService(ledger)

	// A root SHUTDOWN command and an OS signal share the same path.
	shutdownCh := make(chan struct{})
	dispatcher := server.NewDispatcher(trade, auth, func() { close(shutdownCh) })

	tcpSrv := server.New(cfg.TCPAddr(), dispatcher, auth, logger)
	go func() {
		if err := tcpSrv.Start(); err != nil {
			logger.Error("tcp server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: server.NewRouter(trade, logger),
	}
	go func() {
		logger.Info("http server starting", slog.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM or a root SHUTDOWN command.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case <-shutdownCh:
		logger.Info("shutdown requested by root user")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if err := tcpSrv.Stop(shutdownCtx); err != nil {
		logger.Error("tcp shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

// setupLogger builds the slog logger: human-readable text locally, JSON
// everywhere else, at the configured level.
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Env == "local" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// openLedger selects the store backend from configuration.
func openLedger(cfg *config.Config, logger *slog.Logger) (store.Ledger, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemory(), nil
	case "postgres":
		return store.OpenPostgres(cfg.Store.Postgres.URL(), logger)
	case "sqlite":
		return store.OpenSQLite(store.SQLiteConfig{
			Path:     cfg.Store.SQLite.Path,
			PoolSize: cfg.Store.SQLite.PoolSize,
			Logger:   logger,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
