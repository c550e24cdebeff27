package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"stage-inventory-api/internal/config"
	"stage-inventory-api/internal/logger"
	"stage-inventory-api/internal/store/postgres"
)

func main() {
	var (
		dsn     = flag.String("dsn", "", "Database URL (overrides DATABASE_URL)")
		timeout = flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: migrate [-dsn=...] up|status|down\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg := config.Load()
	if *dsn != "" {
		cfg.DatabaseURL = *dsn
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	zl, err := logger.New(cfg.LogLevel, "console")
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st, err := postgres.Open(ctx, cfg.DatabaseURL, zl)
	if err != nil {
		zl.Fatal("connect", zap.Error(err))
	}
	defer st.Close()

	switch command {
	case "up":
		err = postgres.Migrate(ctx, st.DB(), zl)
	case "status":
		err = postgres.MigrationStatus(ctx, st.DB(), zl)
	case "down":
		err = postgres.Rollback(ctx, st.DB(), zl)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		zl.Error("migration failed", zap.String("command", command), zap.Error(err))
		os.Exit(1)
	}
	zl.Info("migration finished", zap.String("command", command))
}
