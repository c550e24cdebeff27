// Package app wires configuration, stores and services into a runnable process.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"stage-inventory-api/internal"
	"stage-inventory-api/internal/config"
	"stage-inventory-api/internal/inventory"
	"stage-inventory-api/internal/reservation"
	"stage-inventory-api/internal/store"
	"stage-inventory-api/internal/store/postgres"
	"stage-inventory-api/pkg/importer"
)

// App holds the long-lived collaborators shared by the API and the CLI tools
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *internal.Metrics
	Recorder     *reservation.Recorder
	Inventory    *inventory.Service
	Reservations *reservation.Service
	Mapping      *importer.MappingConfig

	ping    func(ctx context.Context) error
	closeDB func() error
}

// New opens the configured store and builds the services on top of it.
// With the postgres driver pending migrations are applied first.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: internal.NewMetrics(),
	}

	var (
		equipment store.EquipmentStore
		events    store.EventStore
		history   store.HistoryStore
	)
	switch cfg.StoreDriver {
	case "memory":
		mem := store.NewMemory()
		equipment, events, history = mem, mem, mem
		logger.Warn("using in-memory store; data is lost on exit")
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.DatabaseURL, logger.Named("postgres"))
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pg.DB(), logger.Named("migrate")); err != nil {
			pg.Close()
			return nil, err
		}
		equipment, events, history = pg, pg, pg
		a.ping = pg.Ping
		a.closeDB = pg.Close
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	mapping, err := importer.LoadMapping(cfg.IntakeMapping)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Mapping = mapping

	domainMetrics := reservation.NewMetrics(a.Metrics.Registry())
	a.Recorder = reservation.NewRecorder(history, reservation.RecorderOptions{
		Timeout: cfg.Reservation.HistoryWriteTimeout,
		Logger:  logger.Named("history"),
		Metrics: domainMetrics,
	})
	a.Reservations = reservation.NewService(equipment, events, a.Recorder, reservation.Options{
		Location:    cfg.Location(),
		MaxAttempts: cfg.Reservation.MaxAttempts,
		RetryBase:   cfg.Reservation.RetryBase,
		Parallelism: cfg.Reservation.Parallelism,
		Logger:      logger.Named("reservation"),
		Metrics:     domainMetrics,
	})
	a.Inventory = inventory.NewService(equipment, a.Recorder, inventory.Options{
		Resolver: a.Reservations.Resolver(),
		Logger:   logger.Named("inventory"),
	})
	return a, nil
}

// Server builds the HTTP server over the app's services
func (a *App) Server() (*internal.Server, error) {
	return internal.NewServer(a.Config, internal.Deps{
		Inventory:    a.Inventory,
		Reservations: a.Reservations,
		Mapping:      a.Mapping,
		Metrics:      a.Metrics,
		Logger:       a.Logger,
		Ping:         a.ping,
	})
}

// Close drains pending history writes and then releases the store
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Recorder != nil {
		if err := a.Recorder.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain history: %w", err))
		}
	}
	if a.closeDB != nil {
		if err := a.closeDB(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
