// Package sqlstore implements the event store over database/sql. The sqlite,
// postgres and mysql adapters embed it and supply their Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/eventtype"
	"github.com/getpup/pupkernel/es/sortableid"
	"github.com/getpup/pupkernel/es/store"
)

// DB is what the store needs from a database handle. *sql.DB satisfies it.
type DB interface {
	es.DBTX
	es.TxBeginner
}

// Store is a SQL-backed event store.
type Store struct {
	db       DB
	dialect  Dialect
	registry *eventtype.Registry
	config   Config
}

// New creates a store. Payloads are encoded and decoded through registry.
func New(db DB, dialect Dialect, registry *eventtype.Registry, config Config) *Store {
	if config.Now == nil {
		config.Now = DefaultConfig().Now
	}
	return &Store{
		db:       db,
		dialect:  dialect,
		registry: registry,
		config:   config,
	}
}

var (
	_ store.Store           = (*Store)(nil)
	_ store.EventReader     = (*Store)(nil)
	_ store.CheckpointStore = (*Store)(nil)
)

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", store.ErrStorageUnavailable, op, err)
}

// Append implements store.EventStore in a transaction of its own.
//
//nolint:gocritic // hugeParam: partition keys are compared by value
func (s *Store) Append(ctx context.Context, keys es.PartitionKeys, expected es.ExpectedVersion, events []es.Event) ([]es.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin transaction", err)
	}
	//nolint:errcheck // Rollback after Commit is a no-op
	defer tx.Rollback()

	persisted, err := s.AppendTx(ctx, tx, keys, expected, events)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: partition %s", store.ErrVersionConflict, keys)
		}
		return nil, unavailable("commit", err)
	}
	return persisted, nil
}

// AppendTx appends within a caller-owned transaction, so the events commit
// or roll back together with the caller's own writes.
//
// Versions are assigned from the aggregate_heads row. The unique constraint
// on (partition, version) turns a concurrent writer that read the same head
// into ErrVersionConflict.
//
//nolint:gocyclo,gocritic // logging and validation branches; keys compared by value
func (s *Store) AppendTx(ctx context.Context, tx es.DBTX, keys es.PartitionKeys, expected es.ExpectedVersion, events []es.Event) ([]es.Event, error) {
	if len(events) == 0 {
		return nil, store.ErrNoEvents
	}

	if s.config.Logger != nil {
		s.config.Logger.Debug(ctx, "append starting",
			"partition", keys.String(),
			"event_count", len(events),
			"expected_version", expected.String())
	}

	head, err := s.streamVersion(ctx, tx, keys)
	if err != nil {
		return nil, err
	}

	if !expected.Matches(head) {
		if s.config.Logger != nil {
			s.config.Logger.Error(ctx, "expected version validation failed",
				"partition", keys.String(),
				"current_version", head,
				"expected_version", expected.String())
		}
		return nil, fmt.Errorf("%w: partition %s at version %d, expected %s",
			store.ErrVersionConflict, keys, head, expected)
	}

	tail, err := s.streamTail(ctx, tx, keys)
	if err != nil {
		return nil, err
	}

	prepared, err := store.PrepareBatch(keys, head, tail, events, s.config.Now)
	if err != nil {
		return nil, err
	}

	insertQuery := s.dialect.Rebind(fmt.Sprintf(`
		INSERT INTO %s (
			aggregate_id, aggregate_group, root_partition_key, aggregate_version,
			sortable_unique_id, event_type, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.config.EventsTable))

	now := s.dialect.Time(s.config.Now())
	for i := range prepared {
		ev := &prepared[i]
		eventType, payload, err := s.registry.EncodeEvent(ev.Payload)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}

		_, err = tx.ExecContext(ctx, insertQuery,
			keys.AggregateID,
			keys.Group,
			keys.RootPartitionKey,
			ev.Version,
			string(ev.SortableUniqueID),
			eventType,
			payload,
			now,
		)
		if err != nil {
			if s.dialect.IsUniqueViolation(err) {
				if s.config.Logger != nil {
					s.config.Logger.Error(ctx, "optimistic concurrency conflict",
						"partition", keys.String(),
						"aggregate_version", ev.Version)
				}
				return nil, fmt.Errorf("%w: partition %s version %d", store.ErrVersionConflict, keys, ev.Version)
			}
			return nil, unavailable(fmt.Sprintf("insert event %d", i), err)
		}
	}

	latest := prepared[len(prepared)-1].Version
	_, err = tx.ExecContext(ctx, s.dialect.UpsertHead(s.config.AggregateHeadsTable),
		keys.RootPartitionKey, keys.Group, keys.AggregateID, latest, now)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: partition %s", store.ErrVersionConflict, keys)
		}
		return nil, unavailable("update aggregate head", err)
	}

	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "events appended",
			"backend", s.dialect.Name(),
			"partition", keys.String(),
			"event_count", len(prepared),
			"expected_version", expected.String(),
			"version_range", store.VersionRange(prepared))
	}

	return prepared, nil
}

// StreamVersion returns the head version of a partition, or 0 if it has no events.
//
//nolint:gocritic // hugeParam: partition keys are compared by value
func (s *Store) StreamVersion(ctx context.Context, keys es.PartitionKeys) (int64, error) {
	return s.streamVersion(ctx, s.db, keys)
}

//nolint:gocritic // hugeParam: partition keys are compared by value
func (s *Store) streamVersion(ctx context.Context, tx es.DBTX, keys es.PartitionKeys) (int64, error) {
	query := s.dialect.Rebind(fmt.Sprintf(`
		SELECT aggregate_version
		FROM %s
		WHERE root_partition_key = ? AND aggregate_group = ? AND aggregate_id = ?
	`, s.config.AggregateHeadsTable))

	var head int64
	err := tx.QueryRowContext(ctx, query, keys.RootPartitionKey, keys.Group, keys.AggregateID).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("check current version", err)
	}
	return head, nil
}

// streamTail returns the highest sortable id of a partition, or "".
//
//nolint:gocritic // hugeParam: partition keys are compared by value
func (s *Store) streamTail(ctx context.Context, tx es.DBTX, keys es.PartitionKeys) (sortableid.ID, error) {
	query := s.dialect.Rebind(fmt.Sprintf(`
		SELECT MAX(sortable_unique_id)
		FROM %s
		WHERE root_partition_key = ? AND aggregate_group = ? AND aggregate_id = ?
	`, s.config.EventsTable))

	var tail sql.NullString
	err := tx.QueryRowContext(ctx, query, keys.RootPartitionKey, keys.Group, keys.AggregateID).Scan(&tail)
	if err != nil {
		return "", unavailable("check stream tail", err)
	}
	if !tail.Valid {
		return "", nil
	}
	return sortableid.Parse(strings.TrimSpace(tail.String))
}

const eventColumns = `aggregate_id, aggregate_group, root_partition_key, aggregate_version,
			sortable_unique_id, event_type, payload`

// ReadStream implements store.StreamReader.
//
//nolint:gocritic // hugeParam: partition keys are compared by value
func (s *Store) ReadStream(ctx context.Context, keys es.PartitionKeys, after sortableid.ID) ([]es.Event, error) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(ctx, "reading stream",
			"partition", keys.String(),
			"after", after.String())
	}

	query := s.dialect.Rebind(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE root_partition_key = ? AND aggregate_group = ? AND aggregate_id = ?
			AND sortable_unique_id > ?
		ORDER BY sortable_unique_id ASC
	`, eventColumns, s.config.EventsTable))

	rows, err := s.db.QueryContext(ctx, query,
		keys.RootPartitionKey, keys.Group, keys.AggregateID, string(after))
	if err != nil {
		return nil, unavailable("query stream", err)
	}
	return s.scanEvents(rows)
}

// ReadEvents implements store.EventReader.
func (s *Store) ReadEvents(ctx context.Context, after, before sortableid.ID, limit int) ([]es.Event, error) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(ctx, "reading events", "after", after.String(), "before", before.String(), "limit", limit)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE sortable_unique_id > ?`, eventColumns, s.config.EventsTable)
	args := []interface{}{string(after)}
	if !before.IsZero() {
		query += " AND sortable_unique_id < ?"
		args = append(args, string(before))
	}
	query += " ORDER BY sortable_unique_id ASC, global_position ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, unavailable("query events", err)
	}
	events, err := s.scanEvents(rows)
	if err != nil {
		return nil, err
	}

	if s.config.Logger != nil {
		s.config.Logger.Debug(ctx, "events read", "count", len(events))
	}
	return events, nil
}

func (s *Store) scanEvents(rows *sql.Rows) ([]es.Event, error) {
	defer rows.Close()

	var events []es.Event
	for rows.Next() {
		var (
			ev        es.Event
			id        uuid.UUID
			sortable  string
			eventType string
			payload   []byte
		)
		err := rows.Scan(
			&id,
			&ev.PartitionKeys.Group,
			&ev.PartitionKeys.RootPartitionKey,
			&ev.Version,
			&sortable,
			&eventType,
			&payload,
		)
		if err != nil {
			return nil, unavailable("scan event", err)
		}
		ev.PartitionKeys.AggregateID = id

		ev.SortableUniqueID, err = sortableid.Parse(sortable)
		if err != nil {
			return nil, fmt.Errorf("event %s v%d: %w", ev.PartitionKeys, ev.Version, err)
		}
		ev.Payload, err = s.registry.DecodeEvent(eventType, payload)
		if err != nil {
			return nil, fmt.Errorf("event %s v%d: %w", ev.PartitionKeys, ev.Version, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("rows", err)
	}
	return events, nil
}

// GetCheckpoint implements store.CheckpointStore.
func (s *Store) GetCheckpoint(ctx context.Context, projection string) (sortableid.ID, error) {
	query := s.dialect.Rebind(fmt.Sprintf(`
		SELECT last_sortable_unique_id
		FROM %s
		WHERE projection_name = ?
	`, s.config.CheckpointsTable))

	var id string
	err := s.db.QueryRowContext(ctx, query, projection).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", unavailable("get checkpoint", err)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", nil
	}
	return sortableid.Parse(id)
}

// UpdateCheckpoint implements store.CheckpointStore.
func (s *Store) UpdateCheckpoint(ctx context.Context, projection string, id sortableid.ID) error {
	_, err := s.db.ExecContext(ctx, s.dialect.UpsertCheckpoint(s.config.CheckpointsTable),
		projection, string(id), s.dialect.Time(s.config.Now()))
	if err != nil {
		return unavailable("update checkpoint", err)
	}
	return nil
}
