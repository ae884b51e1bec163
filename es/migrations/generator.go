// Package migrations provides SQL migration generation for the event store tables.
package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Dialect selects the SQL flavor of a migration.
type Dialect string

// Supported dialects.
const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
	MySQL    Dialect = "mysql"
)

// Config configures migration generation.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// EventsTable is the name of the events table
	EventsTable string

	// CheckpointsTable is the name of the projection checkpoints table
	CheckpointsTable string

	// AggregateHeadsTable is the name of the aggregate version tracking table
	AggregateHeadsTable string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:        "migrations",
		OutputFilename:      fmt.Sprintf("%s_init_event_store.sql", timestamp),
		EventsTable:         "events",
		CheckpointsTable:    "projection_checkpoints",
		AggregateHeadsTable: "aggregate_heads",
	}
}

// ParseDialect maps a name (case-insensitive, "postgresql" and "mariadb"
// accepted as aliases) to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql", "mariadb":
		return MySQL, nil
	}
	return "", fmt.Errorf("unsupported dialect %q", name)
}

// SQL returns the migration script for d. Empty table names in config fall
// back to the defaults.
func SQL(d Dialect, config Config) (string, error) {
	config = withDefaultTables(config)
	switch d {
	case Postgres:
		return postgresSQL(&config), nil
	case SQLite:
		return sqliteSQL(&config), nil
	case MySQL:
		return mysqlSQL(&config), nil
	}
	return "", fmt.Errorf("unsupported dialect %q", d)
}

// Generate writes the migration script for d into config.OutputFolder.
func Generate(d Dialect, config *Config) error {
	sql, err := SQL(d, *config)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}
	return nil
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return Generate(Postgres, config)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return Generate(SQLite, config)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return Generate(MySQL, config)
}

// Statements splits a generated script into individual statements, for
// drivers that execute one statement per call.
func Statements(script string) []string {
	var out []string
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") || trimmed == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, strings.TrimSpace(b.String()))
			b.Reset()
		}
	}
	if rest := strings.TrimSpace(b.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

func withDefaultTables(config Config) Config {
	def := DefaultConfig()
	if config.EventsTable == "" {
		config.EventsTable = def.EventsTable
	}
	if config.CheckpointsTable == "" {
		config.CheckpointsTable = def.CheckpointsTable
	}
	if config.AggregateHeadsTable == "" {
		config.AggregateHeadsTable = def.AggregateHeadsTable
	}
	return config
}

func postgresSQL(config *Config) string {
	return fmt.Sprintf(`-- Event Store Migration for PostgreSQL
-- Generated: %[1]s

-- Events are append-only. The sortable unique id orders events inside a
-- partition; global_position only breaks ties between partitions.
-- BYTEA for payload leaves the encoding to the application.
CREATE TABLE IF NOT EXISTS %[2]s (
    global_position BIGSERIAL PRIMARY KEY,
    aggregate_id UUID NOT NULL,
    aggregate_group TEXT NOT NULL,
    root_partition_key TEXT NOT NULL,
    aggregate_version BIGINT NOT NULL,
    sortable_unique_id CHAR(30) NOT NULL,
    event_type TEXT NOT NULL,
    payload BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE (root_partition_key, aggregate_group, aggregate_id, aggregate_version),
    UNIQUE (root_partition_key, aggregate_group, aggregate_id, sortable_unique_id)
);

-- Index for cross-partition reads in sortable id order
CREATE INDEX IF NOT EXISTS idx_%[2]s_sortable_unique_id
    ON %[2]s (sortable_unique_id, global_position);

-- Index for event type queries
CREATE INDEX IF NOT EXISTS idx_%[2]s_event_type
    ON %[2]s (event_type, sortable_unique_id);

-- Aggregate heads give O(1) head version lookup on append
CREATE TABLE IF NOT EXISTS %[3]s (
    root_partition_key TEXT NOT NULL,
    aggregate_group TEXT NOT NULL,
    aggregate_id UUID NOT NULL,
    aggregate_version BIGINT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    PRIMARY KEY (root_partition_key, aggregate_group, aggregate_id)
);

CREATE INDEX IF NOT EXISTS idx_%[3]s_updated
    ON %[3]s (updated_at);

-- Projection checkpoints record the last processed sortable unique id
CREATE TABLE IF NOT EXISTS %[4]s (
    projection_name TEXT PRIMARY KEY,
    last_sortable_unique_id VARCHAR(30) NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_%[4]s_updated
    ON %[4]s (updated_at);
`,
		time.Now().Format(time.RFC3339),
		config.EventsTable,
		config.AggregateHeadsTable,
		config.CheckpointsTable,
	)
}

func sqliteSQL(config *Config) string {
	return fmt.Sprintf(`-- Event Store Migration for SQLite
-- Generated: %[1]s

CREATE TABLE IF NOT EXISTS %[2]s (
    global_position INTEGER PRIMARY KEY AUTOINCREMENT,
    aggregate_id TEXT NOT NULL,
    aggregate_group TEXT NOT NULL,
    root_partition_key TEXT NOT NULL,
    aggregate_version INTEGER NOT NULL,
    sortable_unique_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    payload BLOB NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE (root_partition_key, aggregate_group, aggregate_id, aggregate_version),
    UNIQUE (root_partition_key, aggregate_group, aggregate_id, sortable_unique_id)
);

CREATE INDEX IF NOT EXISTS idx_%[2]s_sortable_unique_id
    ON %[2]s (sortable_unique_id, global_position);

CREATE INDEX IF NOT EXISTS idx_%[2]s_event_type
    ON %[2]s (event_type, sortable_unique_id);

CREATE TABLE IF NOT EXISTS %[3]s (
    root_partition_key TEXT NOT NULL,
    aggregate_group TEXT NOT NULL,
    aggregate_id TEXT NOT NULL,
    aggregate_version INTEGER NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),

    PRIMARY KEY (root_partition_key, aggregate_group, aggregate_id)
);

CREATE INDEX IF NOT EXISTS idx_%[3]s_updated
    ON %[3]s (updated_at);

CREATE TABLE IF NOT EXISTS %[4]s (
    projection_name TEXT PRIMARY KEY,
    last_sortable_unique_id TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_%[4]s_updated
    ON %[4]s (updated_at);
`,
		time.Now().Format(time.RFC3339),
		config.EventsTable,
		config.AggregateHeadsTable,
		config.CheckpointsTable,
	)
}

func mysqlSQL(config *Config) string {
	return fmt.Sprintf(`-- Event Store Migration for MySQL/MariaDB
-- Generated: %[1]s

-- Key columns are VARCHAR(191) so composite unique keys fit the InnoDB limit.
CREATE TABLE IF NOT EXISTS %[2]s (
    global_position BIGINT AUTO_INCREMENT PRIMARY KEY,
    aggregate_id CHAR(36) NOT NULL,
    aggregate_group VARCHAR(191) NOT NULL,
    root_partition_key VARCHAR(191) NOT NULL,
    aggregate_version BIGINT NOT NULL,
    sortable_unique_id CHAR(30) NOT NULL,
    event_type VARCHAR(255) NOT NULL,
    payload LONGBLOB NOT NULL,
    created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),

    UNIQUE KEY uq_%[2]s_version (root_partition_key, aggregate_group, aggregate_id, aggregate_version),
    UNIQUE KEY uq_%[2]s_sortable (root_partition_key, aggregate_group, aggregate_id, sortable_unique_id),
    KEY idx_%[2]s_sortable_unique_id (sortable_unique_id, global_position),
    KEY idx_%[2]s_event_type (event_type, sortable_unique_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

CREATE TABLE IF NOT EXISTS %[3]s (
    root_partition_key VARCHAR(191) NOT NULL,
    aggregate_group VARCHAR(191) NOT NULL,
    aggregate_id CHAR(36) NOT NULL,
    aggregate_version BIGINT NOT NULL,
    updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),

    PRIMARY KEY (root_partition_key, aggregate_group, aggregate_id),
    KEY idx_%[3]s_updated (updated_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

CREATE TABLE IF NOT EXISTS %[4]s (
    projection_name VARCHAR(191) PRIMARY KEY,
    last_sortable_unique_id VARCHAR(30) NOT NULL DEFAULT '',
    updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),

    KEY idx_%[4]s_updated (updated_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`,
		time.Now().Format(time.RFC3339),
		config.EventsTable,
		config.AggregateHeadsTable,
		config.CheckpointsTable,
	)
}
