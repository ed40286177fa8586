// Package main runs a local emulator of the bookkeeping API for development
// and testing.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/shunichi-ikebuchi/ledger-companion/pkg/emulator"
)

const (
	defaultPort   = "8080"
	defaultDBPath = "./data/emulator.db"
)

func main() {
	// Setup structured JSON logging.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Get configuration from environment variables.
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	loc := time.UTC
	if name := os.Getenv("TZ_NAME"); name != "" {
		var err error
		if loc, err = time.LoadLocation(name); err != nil {
			slog.Error("invalid time zone", "error", err, "tz", name)
			os.Exit(1)
		}
	}

	// Initialize store.
	st, err := emulator.NewStore(dbPath)
	if err != nil {
		slog.Error("failed to initialize store", "error", err, "db_path", dbPath)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}()

	slog.Info("database initialized", "db_path", dbPath)

	// SEED names a fixture file, "none" skips seeding.
	if seedPath := os.Getenv("SEED"); seedPath != "none" {
		if err := applySeed(st, seedPath); err != nil {
			slog.Error("failed to seed store", "error", err, "seed", seedPath)
			os.Exit(1)
		}
	}

	srv := emulator.NewServer(st, loc, logger)

	// Start server.
	addr := fmt.Sprintf(":%s", port)
	slog.Info("starting bookkeeping API emulator", "addr", addr, "port", port)

	server := &http.Server{
		Addr:              addr,
		Handler:           middleware.Logger(srv.Handler()),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		slog.Info("shutting down server")
		srv.Hub().Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

func applySeed(st *emulator.Store, path string) error {
	var (
		seed *emulator.Seed
		err  error
	)
	if path == "" {
		seed, err = emulator.DefaultSeed()
	} else {
		seed, err = emulator.LoadSeed(path)
	}
	if err != nil {
		return err
	}

	if err := st.Apply(seed); err != nil {
		return err
	}
	slog.Info("store seeded", "tokens", len(seed.Tokens), "vendors", len(seed.Vendors), "parties", len(seed.Parties))
	return nil
}
