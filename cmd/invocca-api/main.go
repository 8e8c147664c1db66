// Package main is the entry point for the invocca API service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MCT-Salman/invocca/internal/auth"
	"github.com/MCT-Salman/invocca/internal/config"
	"github.com/MCT-Salman/invocca/internal/dbutil"
	"github.com/MCT-Salman/invocca/internal/events"
	natspub "github.com/MCT-Salman/invocca/internal/events/nats"
	"github.com/MCT-Salman/invocca/internal/server"
	"github.com/MCT-Salman/invocca/internal/store"
	"github.com/MCT-Salman/invocca/migrations"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.DevMode {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "invocca").Str("version", version).Logger()
	}

	logger := log.With().Str("component", "main").Logger()
	logger.Info().Str("version", version).Str("commit", commit).Str("build_date", buildDate).Msg("starting invocca-api")
	if cfg.DevMode {
		logger.Warn().Msg("DEV MODE ENABLED - requests without a token run as admin; do not use in production")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer closeStore()

	secret := cfg.JWTSecret
	if secret == "" {
		secret = auth.DevSecret
		logger.Warn().Msg("INVOCCA_JWT_SECRET not set; using the built-in dev secret")
	}
	verifier, err := auth.NewVerifier([]byte(secret), cfg.JWTIssuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token verifier")
	}

	opts := []server.Option{server.WithVerifier(verifier)}
	if cfg.NATSURL != "" {
		pub, pubErr := natspub.NewPublisher(ctx, natspub.Config{
			URL:  cfg.NATSURL,
			Name: "invocca-api",
			Stream: natspub.StreamConfig{
				Name:     cfg.NATSStream,
				Subjects: []string{events.SubjectPrefix + ".>"},
			},
		})
		if pubErr != nil {
			logger.Fatal().Err(pubErr).Msg("failed to connect change event publisher")
		}
		defer func() {
			if closeErr := pub.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to drain NATS connection")
			}
		}()
		opts = append(opts, server.WithPublisher(pub))
		logger.Info().Str("url", cfg.NATSURL).Str("stream", cfg.NATSStream).Msg("publishing change events to NATS")
	}

	srv := server.New(st, cfg, version, commit, buildDate, opts...)
	go srv.Hub().Run(ctx)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case serveErr := <-errCh:
		logger.Error().Err(serveErr).Msg("HTTP server error")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("HTTP server shutdown error")
	}
	logger.Info().Msg("server stopped gracefully")
}

// openStore selects PostgreSQL when a DSN is configured and the in-memory
// store otherwise.
func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Store, func(), error) {
	if cfg.DBDSN == "" {
		logger.Warn().Msg("INVOCCA_DB_DSN not set; using the in-memory store, data is lost on exit")
		return store.NewMemoryStore(), func() {}, nil
	}

	db, err := dbutil.Connect(ctx, dbutil.PoolConfig{DSN: cfg.DBDSN, MaxOpenConns: cfg.DBMaxOpenConns})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	logger.Info().Msg("connected to PostgreSQL")

	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS invocca"); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensuring invocca schema: %w", err)
	}

	result, err := dbutil.RunMigrations(ctx, db, migrations.Postgres, migrations.PostgresDir)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Info().Uint("version", result.Version).Bool("dirty", result.Dirty).Msg("database migration complete")

	return store.NewPostgresStore(db), func() { _ = db.Close() }, nil
}
