package sqlstore

import (
	"context"
	"fmt"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/migrations"
)

// Migrate creates the tables named in config if they do not exist.
// Statements run one at a time, so no driver needs multi-statement support.
func Migrate(ctx context.Context, db es.DBTX, d migrations.Dialect, config Config) error {
	script, err := migrations.SQL(d, migrations.Config{
		EventsTable:         config.EventsTable,
		CheckpointsTable:    config.CheckpointsTable,
		AggregateHeadsTable: config.AggregateHeadsTable,
	})
	if err != nil {
		return err
	}
	for i, stmt := range migrations.Statements(script) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i+1, err)
		}
	}
	return nil
}
