// Package mysql provides a MySQL/MariaDB adapter for the event store.
//
// Importing the package registers the go-sql-driver/mysql driver under the
// name "mysql". DSNs should set parseTime=true.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/adapters/internal/sqlstore"
	"github.com/getpup/pupkernel/es/eventtype"
	"github.com/getpup/pupkernel/es/migrations"
)

// DriverName is the database/sql driver name registered by go-sql-driver/mysql.
const DriverName = "mysql"

// errDupEntry is ER_DUP_ENTRY.
const errDupEntry = 1062

// StoreConfig contains configuration for the MySQL event store.
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

// Store is a MySQL-backed event store.
type Store struct {
	*sqlstore.Store
	db     *sql.DB
	config StoreConfig
}

// NewStore creates a MySQL event store on db.
func NewStore(db *sql.DB, registry *eventtype.Registry, config StoreConfig) *Store {
	return &Store{
		Store:  sqlstore.New(db, dialect{}, registry, config),
		db:     db,
		config: config,
	}
}

// Migrate creates the store's tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	return sqlstore.Migrate(ctx, s.db, migrations.MySQL, s.config)
}

// IsUniqueViolation checks if an error is a MySQL unique constraint violation.
// This is exported for testing purposes.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == errDupEntry
	}

	errMsg := err.Error()
	return strings.Contains(errMsg, "Duplicate entry") ||
		strings.Contains(errMsg, "duplicate key") ||
		strings.Contains(errMsg, "unique constraint")
}

type dialect struct{}

func (dialect) Name() string { return "mysql" }

func (dialect) Rebind(query string) string { return query }

func (dialect) IsUniqueViolation(err error) bool { return IsUniqueViolation(err) }

func (dialect) UpsertHead(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (root_partition_key, aggregate_group, aggregate_id, aggregate_version, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			aggregate_version = VALUES(aggregate_version),
			updated_at = VALUES(updated_at)
	`, table)
}

func (dialect) UpsertCheckpoint(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (projection_name, last_sortable_unique_id, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			last_sortable_unique_id = VALUES(last_sortable_unique_id),
			updated_at = VALUES(updated_at)
	`, table)
}

func (dialect) Time(t time.Time) interface{} { return t.UTC() }
