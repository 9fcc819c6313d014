// internal/store/postgres/postgres.go

// Package postgres implements store.Store on PostgreSQL through sqlx. Either
// lib/pq ("postgres") or pgx ("pgx") can serve as the driver.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"bookstore/internal/store"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the "postgres" driver
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultMaxOpenConnections = 50
	defaultMaxIdleConnections = 10
	defaultMaxConnLifetime    = time.Hour
	defaultMaxConnIdleTime    = time.Minute * 5
)

// Store provides serializable transactions with row locks over PostgreSQL.
type Store struct {
	queries
	db     *sqlx.DB
	tracer trace.Tracer
}

// Open connects with the named driver and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConnections)
	db.SetMaxIdleConns(defaultMaxIdleConnections)
	db.SetConnMaxLifetime(defaultMaxConnLifetime)
	db.SetConnMaxIdleTime(defaultMaxConnIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{
		queries: queries{q: db},
		db:      db,
		tracer:  otel.Tracer("bookstore/store/postgres"),
	}
}

// Migrate applies the embedded schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// DB exposes the pool for tests and tooling.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn in a serializable transaction. Serialization failures and
// deadlocks surface as store.ErrConcurrencyConflict so callers can retry.
func (s *Store) InTx(ctx context.Context, fn store.TxFunc) (err error) {
	ctx, span := s.tracer.Start(ctx, "postgres.tx")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return classify("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &tx{queries: queries{q: sqlTx}, sqlTx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return classify("commit transaction", err)
	}

	span.SetAttributes(attribute.Bool("tx.committed", true))
	return nil
}
