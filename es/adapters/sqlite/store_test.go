package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/adapters/sqlite"
	"github.com/getpup/pupkernel/es/store"
	"github.com/getpup/pupkernel/es/store/storetest"
)

func newStore(t *testing.T, opts ...sqlite.StoreOption) (*sqlite.Store, *sql.DB) {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := sqlite.NewStore(db, storetest.NewRegistry(), sqlite.NewStoreConfig(opts...))
	require.NoError(t, s.Migrate(context.Background()))
	return s, db
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		s, _ := newStore(t)
		return s
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestCustomTableNames(t *testing.T) {
	ctx := context.Background()
	s, db := newStore(t,
		sqlite.WithEventsTable("ledger_events"),
		sqlite.WithAggregateHeadsTable("ledger_heads"),
		sqlite.WithCheckpointsTable("ledger_checkpoints"),
	)
	keys := es.NewPartitionKeys("Ledger", "")

	_, err := s.Append(ctx, keys, es.NoStream(), []es.Event{{Payload: storetest.Recorded{Seq: 1}}})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_events").Scan(&count))
	assert.Equal(t, 1, count)

	var head int64
	require.NoError(t, db.QueryRowContext(ctx, "SELECT aggregate_version FROM ledger_heads").Scan(&head))
	assert.Equal(t, int64(1), head)
}

func TestAppendTx_RollsBackWithCaller(t *testing.T) {
	ctx := context.Background()
	s, db := newStore(t)
	keys := es.NewPartitionKeys("Ledger", "")

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	persisted, err := s.AppendTx(ctx, tx, keys, es.NoStream(), []es.Event{
		{Payload: storetest.Recorded{Seq: 1}},
		{Payload: storetest.Recorded{Seq: 2}},
	})
	require.NoError(t, err)
	assert.Len(t, persisted, 2)
	require.NoError(t, tx.Rollback())

	events, err := s.ReadStream(ctx, keys, "")
	require.NoError(t, err)
	assert.Empty(t, events)

	version, err := s.StreamVersion(ctx, keys)
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestAppendTx_CommitsWithCaller(t *testing.T) {
	ctx := context.Background()
	s, db := newStore(t)
	keys := es.NewPartitionKeys("Ledger", "")

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = s.AppendTx(ctx, tx, keys, es.NoStream(), []es.Event{{Payload: storetest.Recorded{Seq: 1}}})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	version, err := s.StreamVersion(ctx, keys)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestAppend_UnregisteredPayload(t *testing.T) {
	s, _ := newStore(t)
	keys := es.NewPartitionKeys("Ledger", "")

	_, err := s.Append(context.Background(), keys, es.NoStream(), []es.Event{{Payload: storetest.Recorded{Seq: 1}}, {Payload: unregistered{}}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrVersionConflict)

	events, err := s.ReadStream(context.Background(), keys, "")
	require.NoError(t, err)
	assert.Empty(t, events)
}

type unregistered struct{}

func (unregistered) EventType() string { return "Unregistered" }

func TestAppend_ClosedDatabase(t *testing.T) {
	s, db := newStore(t)
	require.NoError(t, db.Close())

	_, err := s.Append(context.Background(), es.NewPartitionKeys("Ledger", ""), es.Any(),
		[]es.Event{{Payload: storetest.Recorded{Seq: 1}}})
	assert.ErrorIs(t, err, store.ErrStorageUnavailable)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, sqlite.IsUniqueViolation(nil))
	assert.False(t, sqlite.IsUniqueViolation(errors.New("disk I/O error")))
	assert.True(t, sqlite.IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: events.aggregate_version (2067)")))
}
