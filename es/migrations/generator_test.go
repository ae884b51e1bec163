package migrations

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGeneratePostgres(t *testing.T) {
	tmpDir := t.TempDir()

	config := Config{
		OutputFolder:     tmpDir,
		OutputFilename:   "test_migration.sql",
		EventsTable:      "events",
		CheckpointsTable: "projection_checkpoints",
	}

	err := GeneratePostgres(&config)
	if err != nil {
		t.Fatalf("GeneratePostgres failed: %v", err)
	}

	outputPath := filepath.Join(tmpDir, config.OutputFilename)
	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read generated file: %v", err)
	}

	sql := string(content)

	requiredStrings := []string{
		"CREATE TABLE IF NOT EXISTS events",
		"global_position BIGSERIAL PRIMARY KEY",
		"aggregate_id UUID NOT NULL",
		"aggregate_group TEXT NOT NULL",
		"root_partition_key TEXT NOT NULL",
		"aggregate_version BIGINT NOT NULL",
		"sortable_unique_id CHAR(30) NOT NULL",
		"event_type TEXT NOT NULL",
		"payload BYTEA NOT NULL",
		"created_at TIMESTAMPTZ NOT NULL",
		"UNIQUE (root_partition_key, aggregate_group, aggregate_id, aggregate_version)",
		"UNIQUE (root_partition_key, aggregate_group, aggregate_id, sortable_unique_id)",
		"CREATE TABLE IF NOT EXISTS aggregate_heads",
		"PRIMARY KEY (root_partition_key, aggregate_group, aggregate_id)",
		"CREATE TABLE IF NOT EXISTS projection_checkpoints",
		"projection_name TEXT PRIMARY KEY",
		"last_sortable_unique_id VARCHAR(30) NOT NULL",
	}

	for _, required := range requiredStrings {
		if !strings.Contains(sql, required) {
			t.Errorf("Generated SQL missing required string: %s", required)
		}
	}

	requiredIndexes := []string{
		"idx_events_sortable_unique_id",
		"idx_events_event_type",
		"idx_aggregate_heads_updated",
		"idx_projection_checkpoints_updated",
	}

	for _, idx := range requiredIndexes {
		if !strings.Contains(sql, idx) {
			t.Errorf("Generated SQL missing index: %s", idx)
		}
	}

	if !strings.Contains(sql, "BYTEA for payload") {
		t.Error("Missing comment explaining BYTEA choice for payload")
	}
}

func TestGeneratePostgres_CustomTableNames(t *testing.T) {
	tmpDir := t.TempDir()

	config := Config{
		OutputFolder:        tmpDir,
		OutputFilename:      "custom_migration.sql",
		EventsTable:         "custom_events",
		CheckpointsTable:    "custom_checkpoints",
		AggregateHeadsTable: "custom_heads",
	}

	err := GeneratePostgres(&config)
	if err != nil {
		t.Fatalf("GeneratePostgres failed: %v", err)
	}

	outputPath := filepath.Join(tmpDir, config.OutputFilename)
	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read generated file: %v", err)
	}

	sql := string(content)

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS custom_events",
		"CREATE TABLE IF NOT EXISTS custom_checkpoints",
		"CREATE TABLE IF NOT EXISTS custom_heads",
		"idx_custom_events_sortable_unique_id",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("Custom table name not used: %s", want)
		}
	}
}

func TestSQL_AllDialects(t *testing.T) {
	tests := []struct {
		dialect  Dialect
		required []string
	}{
		{SQLite, []string{
			"global_position INTEGER PRIMARY KEY AUTOINCREMENT",
			"sortable_unique_id TEXT NOT NULL",
			"payload BLOB NOT NULL",
		}},
		{MySQL, []string{
			"global_position BIGINT AUTO_INCREMENT PRIMARY KEY",
			"aggregate_id CHAR(36) NOT NULL",
			"sortable_unique_id CHAR(30) NOT NULL",
			"UNIQUE KEY uq_events_version",
			"UNIQUE KEY uq_events_sortable",
			"ENGINE=InnoDB",
		}},
		{Postgres, []string{
			"BIGSERIAL",
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			sql, err := SQL(tt.dialect, Config{})
			if err != nil {
				t.Fatalf("SQL failed: %v", err)
			}
			for _, required := range tt.required {
				if !strings.Contains(sql, required) {
					t.Errorf("Generated SQL missing required string: %s", required)
				}
			}
			for _, table := range []string{"events", "aggregate_heads", "projection_checkpoints"} {
				if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS "+table+" (") {
					t.Errorf("Generated SQL missing table %s", table)
				}
			}
		})
	}

	if _, err := SQL("oracle", Config{}); err == nil {
		t.Error("Expected error for unsupported dialect")
	}
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		name    string
		want    Dialect
		wantErr bool
	}{
		{"postgres", Postgres, false},
		{"PostgreSQL", Postgres, false},
		{"sqlite3", SQLite, false},
		{"mariadb", MySQL, false},
		{"mssql", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDialect(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDialect(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDialect(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestStatements(t *testing.T) {
	sql, err := SQL(SQLite, Config{})
	if err != nil {
		t.Fatalf("SQL failed: %v", err)
	}

	stmts := Statements(sql)
	if len(stmts) != 7 {
		t.Fatalf("expected 7 statements, got %d", len(stmts))
	}
	for _, stmt := range stmts {
		if strings.HasPrefix(stmt, "--") {
			t.Errorf("statement starts with a comment: %q", stmt)
		}
		if !strings.HasSuffix(stmt, ";") {
			t.Errorf("statement not terminated: %q", stmt)
		}
	}
}
