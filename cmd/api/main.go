package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"stage-inventory-api/internal/app"
	"stage-inventory-api/internal/config"
	"stage-inventory-api/internal/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load and validate configuration
	cfg, err := config.LoadAndValidate()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		return err
	}
	srv, err := a.Server()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	zl.Info("starting stage inventory api",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("store", cfg.StoreDriver),
		zap.String("timezone", cfg.Timezone),
		zap.String("jwt_issuer", cfg.JWTIssuer),
		zap.String("jwt_audience", cfg.JWTAudience),
		zap.Duration("jwt_expiry", cfg.JWTExpiry),
		zap.Bool("metrics", cfg.EnableMetrics),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			a.Close(context.Background())
			return err
		}
	case <-ctx.Done():
		zl.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown", zap.Error(err))
	}
	return a.Close(shutdownCtx)
}
