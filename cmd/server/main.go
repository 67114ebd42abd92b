package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cpmboard/internal/config"
	"cpmboard/internal/database/boltstore"
	"cpmboard/internal/handlers"
	"cpmboard/internal/moderation"
	"cpmboard/internal/routing"
	"cpmboard/internal/session"
	"cpmboard/internal/tracing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	// Configure zerolog
	switch cfg.LogLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Use pretty console logging in development, JSON in production
	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	log.Info().Msg("Starting CPM listing board")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.Init(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracing")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Tracer shutdown failed")
			}
		}()
	}

	store, err := boltstore.Open(boltstore.Options{
		Path: cfg.DBPath,
	})
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	defer store.Close()

	log.Info().Str("path", cfg.DBPath).Msg("Database opened")

	engine := moderation.NewEngine(
		store.ListingStore(),
		store.EngagementLedger(),
		store.ReportLedger(),
	)
	sessions := session.NewManager(store.SessionStore(), cfg.AdminSessionTTL)

	h := handlers.NewHandler(engine, sessions, handlers.Config{
		SecureCookies: cfg.SecureCookies,
	})

	handler := routing.SetupRouter(routing.Config{
		Handlers:        h,
		AdminSecretPath: cfg.AdminSecretPath,
		SecureCookies:   cfg.SecureCookies,
		TracingEnabled:  cfg.TracingEnabled,
		Logger:          log.Logger,
	})

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.Port,
		Handler: handler,
	}

	log.Info().
		Str("address", srv.Addr).
		Str("url", "http://localhost:"+cfg.Port).
		Bool("secure_cookies", cfg.SecureCookies).
		Str("database", cfg.DBPath).
		Msg("Starting HTTP server")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return sessions.PurgeLoop(gctx, 10*time.Minute)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
	log.Info().Msg("Server stopped")
}
