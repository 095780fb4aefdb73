// Package store is the Postgres persistence shared by both services: orders
// (pedidos_v2), loyalty balances (profiles), saved addresses (direcciones) and
// the product catalog (productos).
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var (
	ErrDuplicateOrder  = errors.New("order already recorded")
	ErrOrderNotFound   = errors.New("order not found")
	ErrProfileNotFound = errors.New("profile not found")
	ErrAddressNotFound = errors.New("address not found")
)

// Postgres error codes we branch on.
const (
	codeUniqueViolation     = "23505"
	codeInvalidTextRepr     = "22P02"
	codeForeignKeyViolation = "23503"
)

//go:embed schema.sql
var schema string

// PostgresStore implements every store interface the services declare.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the pool and pings it.
func NewPostgresStore(ctx context.Context, connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewFromDB wraps an existing handle.
func NewFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping backs the health endpoints.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies schema.sql. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == codeUniqueViolation
}

// isBadReference covers ids that cannot name a row: malformed uuids and
// missing foreign keys.
func isBadReference(err error) bool {
	code := pqCode(err)
	return code == codeInvalidTextRepr || code == codeForeignKeyViolation
}
