// Package sqlite provides a SQLite adapter for the event store.
//
// It registers the pure-Go modernc.org/sqlite driver under the name "sqlite".
// SQLite serializes writers, so concurrent appends from several connections
// may fail with a busy error (reported as store.ErrStorageUnavailable) rather
// than a version conflict.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/adapters/internal/sqlstore"
	"github.com/getpup/pupkernel/es/eventtype"
	"github.com/getpup/pupkernel/es/migrations"
)

const (
	// DriverName is the database/sql driver name registered by modernc.org/sqlite.
	DriverName = "sqlite"

	// sqliteDateTimeFormat is the format used for timestamp storage in SQLite
	sqliteDateTimeFormat = "2006-01-02 15:04:05.999999"
)

// StoreConfig contains configuration for the SQLite event store.
type StoreConfig = sqlstore.Config

// StoreOption is a functional option for configuring a Store.
type StoreOption = sqlstore.Option

// DefaultStoreConfig returns the default configuration.
func DefaultStoreConfig() StoreConfig {
	return sqlstore.DefaultConfig()
}

// WithLogger sets a logger for the store.
func WithLogger(logger es.Logger) StoreOption {
	return sqlstore.WithLogger(logger)
}

// WithEventsTable sets a custom events table name.
func WithEventsTable(tableName string) StoreOption {
	return sqlstore.WithEventsTable(tableName)
}

// WithCheckpointsTable sets a custom projection checkpoints table name.
func WithCheckpointsTable(tableName string) StoreOption {
	return sqlstore.WithCheckpointsTable(tableName)
}

// WithAggregateHeadsTable sets a custom aggregate heads table name.
func WithAggregateHeadsTable(tableName string) StoreOption {
	return sqlstore.WithAggregateHeadsTable(tableName)
}

// WithClock sets the clock used to stamp sortable ids.
func WithClock(now func() time.Time) StoreOption {
	return sqlstore.WithClock(now)
}

// NewStoreConfig creates a new store configuration with functional options.
//
// Example:
//
//	config := sqlite.NewStoreConfig(
//	    sqlite.WithLogger(myLogger),
//	    sqlite.WithEventsTable("custom_events"),
//	)
func NewStoreConfig(opts ...StoreOption) StoreConfig {
	return sqlstore.NewConfig(opts...)
}

// Store is a SQLite-backed event store.
type Store struct {
	*sqlstore.Store
	db     *sql.DB
	config StoreConfig
}

// NewStore creates a SQLite event store on db.
func NewStore(db *sql.DB, registry *eventtype.Registry, config StoreConfig) *Store {
	return &Store{
		Store:  sqlstore.New(db, dialect{}, registry, config),
		db:     db,
		config: config,
	}
}

// Open opens a database file (or ":memory:") and returns a handle suited to
// the store. An in-memory database lives on one connection, so the pool is
// capped at one. File databases are switched to WAL mode; per-connection
// pragmas such as busy_timeout belong in the DSN (?_pragma=busy_timeout(5000)).
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, err
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	return db, nil
}

// Migrate creates the store's tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	return sqlstore.Migrate(ctx, s.db, migrations.SQLite, s.config)
}

// IsUniqueViolation checks if an error is a SQLite unique constraint violation.
// This is exported for testing purposes.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}

	errMsg := err.Error()
	return strings.Contains(errMsg, "UNIQUE constraint failed") ||
		strings.Contains(errMsg, "unique constraint")
}

type dialect struct{}

func (dialect) Name() string { return "sqlite" }

func (dialect) Rebind(query string) string { return query }

func (dialect) IsUniqueViolation(err error) bool { return IsUniqueViolation(err) }

func (dialect) UpsertHead(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (root_partition_key, aggregate_group, aggregate_id, aggregate_version, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (root_partition_key, aggregate_group, aggregate_id)
		DO UPDATE SET aggregate_version = excluded.aggregate_version, updated_at = excluded.updated_at
	`, table)
}

func (dialect) UpsertCheckpoint(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (projection_name, last_sortable_unique_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (projection_name)
		DO UPDATE SET last_sortable_unique_id = excluded.last_sortable_unique_id, updated_at = excluded.updated_at
	`, table)
}

func (dialect) Time(t time.Time) interface{} {
	return t.UTC().Format(sqliteDateTimeFormat)
}
