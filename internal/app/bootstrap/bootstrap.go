package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	pollservice "strata/contexts/governance/poll-service"
	pollpostgres "strata/contexts/governance/poll-service/adapters/postgres"
	pollworkers "strata/contexts/governance/poll-service/application/workers"
	"strata/internal/platform/config"
	"strata/internal/platform/db"
	"strata/internal/platform/httpserver"
	"strata/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	outboxRelay  pollworkers.OutboxRelay
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	repo := pollpostgres.NewRepository(pg.DB, logger)
	module := pollservice.NewModule(pollservice.Dependencies{
		Polls:          repo,
		Ballots:        repo,
		Roster:         repo,
		Idempotency:    repo,
		Outbox:         repo,
		Clock:          pollpostgres.SystemClock{},
		IDGen:          pollpostgres.UUIDGenerator{},
		IdempotencyTTL: cfg.IdempotencyTTL,
		Logger:         logger,
	})

	server := httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	if !cfg.EnableOutboxRelay {
		return nil, errors.New("ENABLE_OUTBOX_RELAY must be true for the worker process")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	repo := pollpostgres.NewRepository(pg.DB, logger)
	bus := messaging.NewBus(logger)
	return &WorkerApp{
		postgres: pg,
		outboxRelay: pollworkers.OutboxRelay{
			Outbox:    repo,
			Publisher: bus,
			Clock:     pollpostgres.SystemClock{},
			BatchSize: cfg.RelayBatchSize,
			Logger:    logger,
		},
		pollInterval: cfg.RelayPollInterval,
		logger:       logger,
	}, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if err := w.outboxRelay.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
