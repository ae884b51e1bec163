// Package postgres provides a PostgreSQL adapter for the event store.
//
// Importing the package registers the lib/pq driver under the name "postgres".
// Appends read the partition head from aggregate_heads and rely on the unique
// constraint over (partition, version) to turn a concurrent writer into
// store.ErrVersionConflict.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/adapters/internal/sqlstore"
	"github.com/getpup/pupkernel/es/eventtype"
	"github.com/getpup/pupkernel/es/migrations"
)

// DriverName is the database/sql driver name registered by lib/pq.
const DriverName = "postgres"

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// StoreConfig contains configuration for the Postgres event store.
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
func NewStoreConfig(opts ...StoreOption) StoreConfig {
	return sqlstore.NewConfig(opts...)
}

// Store is a PostgreSQL-backed event store.
type Store struct {
	*sqlstore.Store
	db     *sql.DB
	config StoreConfig
}

// NewStore creates a Postgres event store on db.
func NewStore(db *sql.DB, registry *eventtype.Registry, config StoreConfig) *Store {
	return &Store{
		Store:  sqlstore.New(db, dialect{}, registry, config),
		db:     db,
		config: config,
	}
}

// Migrate creates the store's tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	return sqlstore.Migrate(ctx, s.db, migrations.Postgres, s.config)
}

// IsUniqueViolation checks if an error is a PostgreSQL unique constraint violation.
// This is exported for testing purposes.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}

	errMsg := err.Error()
	return strings.Contains(errMsg, "duplicate key") || strings.Contains(errMsg, "unique constraint")
}

type dialect struct{}

func (dialect) Name() string { return "postgres" }

func (dialect) Rebind(query string) string { return sqlstore.DollarRebind(query) }

func (dialect) IsUniqueViolation(err error) bool { return IsUniqueViolation(err) }

func (dialect) UpsertHead(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (root_partition_key, aggregate_group, aggregate_id, aggregate_version, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (root_partition_key, aggregate_group, aggregate_id)
		DO UPDATE SET aggregate_version = EXCLUDED.aggregate_version, updated_at = EXCLUDED.updated_at
	`, table)
}

func (dialect) UpsertCheckpoint(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (projection_name, last_sortable_unique_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (projection_name)
		DO UPDATE SET last_sortable_unique_id = EXCLUDED.last_sortable_unique_id, updated_at = EXCLUDED.updated_at
	`, table)
}

func (dialect) Time(t time.Time) interface{} { return t.UTC() }
