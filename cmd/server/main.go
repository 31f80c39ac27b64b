package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/globetrotter/internal/broker"
	"github.com/playperu/globetrotter/internal/config"
	"github.com/playperu/globetrotter/internal/database"
	"github.com/playperu/globetrotter/internal/engine"
	"github.com/playperu/globetrotter/internal/handler/health"
	"github.com/playperu/globetrotter/internal/migrations"
	"github.com/playperu/globetrotter/internal/quiz"
	"github.com/playperu/globetrotter/internal/server"
	"github.com/playperu/globetrotter/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	st := store.New(db)
	if cfg.SeedCatalog {
		if err := st.SeedDefault(ctx, logger); err != nil {
			return fmt.Errorf("seeding catalog: %w", err)
		}
	}

	// --- Broadcast ---
	relay, err := broker.DialRelay(cfg.RelayURL, cfg.RelayPrefix, logger)
	if err != nil {
		return fmt.Errorf("connecting to relay: %w", err)
	}
	b := broker.New(logger, relay)
	defer b.Close()
	if relay != nil {
		if err := b.Ping(ctx); err != nil {
			return fmt.Errorf("pinging relay: %w", err)
		}
		logger.Info("connected to relay", "prefix", cfg.RelayPrefix)
	}

	eng := engine.New(st, st, b, logger, engine.Options{
		MailboxSize:      cfg.MailboxSize,
		DefaultQuestions: cfg.DefaultQuestions,
		MaxQuestions:     cfg.MaxQuestions,
		IdleTTL:          cfg.IdleTTL,
		FinishedTTL:      cfg.FinishedTTL,
		SweepInterval:    cfg.SweepInterval,
	})

	checks := map[string]health.Checker{"sqlite": health.CheckerFunc(st.Ping)}
	if relay != nil {
		checks["relay"] = health.CheckerFunc(b.Ping)
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Engine:      eng,
		Challenges:  st,
		Quiz:        quiz.NewService(st),
		Broker:      b,
		PublicURL:   cfg.PublicURL,
		CORSOrigins: cfg.CORSOrigins,
	}, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger, checks).Routes())
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return b.Run(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}
