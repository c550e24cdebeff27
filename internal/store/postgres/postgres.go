// Package postgres implements the store contracts on PostgreSQL.
// Equipment and events go through a pgx pool; history and migrations use the
// database/sql view of the same pool.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"stage-inventory-api/internal/store"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store is the Postgres implementation of the equipment, event and history stores
type Store struct {
	pool   *pgxpool.Pool
	db     *sql.DB
	logger *zap.Logger
}

var (
	_ store.EquipmentStore = (*Store)(nil)
	_ store.EventStore     = (*Store)(nil)
	_ store.HistoryStore   = (*Store)(nil)
)

// Open connects to dsn and pings the database
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgxpool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}
	return New(pool, logger), nil
}

// New wraps an existing pool
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:   pool,
		db:     stdlib.OpenDBFromPool(pool),
		logger: logger,
	}
}

// DB exposes the database/sql handle for migrations
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool
func (s *Store) Close() error {
	err := s.db.Close()
	s.pool.Close()
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
