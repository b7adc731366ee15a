// Package sqlite is the reference implementation of the persistence API
// collaborator, backed by SQLite with embedded goose migrations. List reads
// support the streaming contract: partial snapshots are pushed to the
// caller while the full result is still being scanned.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/neomorfeo/tallyiq/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// streamBatchSize is how many rows a streaming Get scans before pushing a
// partial snapshot.
const streamBatchSize = 50

// Compile-time check: Backend implements domain.Backend.
var _ domain.Backend = (*Backend)(nil)

// Backend groups the per-resource repositories over one database.
type Backend struct {
	db *sql.DB

	consumers     *ConsumerResource
	consumerTypes *ConsumerTypeResource
	products      *ProductResource
	occasions     *OccasionResourceImpl
	orders        *OrderResource
}

// New opens a SQLite database, runs migrations, and returns a ready backend.
func New(dataSourceName string) (*Backend, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and
// returns a ready backend. Use this when the *sql.DB has been pre-configured
// (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*Backend, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &Backend{
		db:            db,
		consumers:     &ConsumerResource{db: db},
		consumerTypes: &ConsumerTypeResource{db: db},
		products:      &ProductResource{db: db},
		occasions:     &OccasionResourceImpl{db: db},
		orders:        &OrderResource{db: db},
	}, nil
}

// Close closes the underlying database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

// DB returns the underlying database connection for use by other adapters
// (e.g., river).
func (b *Backend) DB() *sql.DB {
	return b.db
}

func (b *Backend) Consumers() domain.Resource[domain.Consumer] { return b.consumers }

func (b *Backend) ConsumerTypes() domain.Resource[domain.ConsumerType] { return b.consumerTypes }

func (b *Backend) Products() domain.Resource[domain.Product] { return b.products }

func (b *Backend) Occasions() domain.OccasionResource { return b.occasions }

func (b *Backend) Orders() domain.Resource[domain.Order] { return b.orders }

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

const timeFormat = "2006-01-02T15:04:05Z"

// stream pushes a partial snapshot to onUpdate at batch boundaries.
func stream[T any](onUpdate func([]T), acc []T) {
	if onUpdate == nil || len(acc)%streamBatchSize != 0 || len(acc) == 0 {
		return
	}
	snap := make([]T, len(acc))
	copy(snap, acc)
	onUpdate(snap)
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return ` WHERE ` + strings.Join(conds, ` AND `)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// mustAffect converts a zero-row update into the resource's not-found error.
func mustAffect(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// setTrashed soft-deletes or restores a row by setting trashed_at.
func setTrashed(ctx context.Context, db *sql.DB, table, id string, trashed bool, notFound error) error {
	var stamp any
	if trashed {
		stamp = time.Now().UTC().Format(timeFormat)
	}
	result, err := db.ExecContext(ctx,
		`UPDATE `+table+` SET trashed_at = ? WHERE id = ?`, stamp, id)
	if err != nil {
		return fmt.Errorf("updating %s trash state: %w", table, err)
	}
	return mustAffect(result, notFound)
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
