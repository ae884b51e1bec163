// Package memory provides an in-process event store.
//
// Each partition has its own lock, so appends to different partitions never
// contend. The store is intended for tests, examples and single-process hosts;
// nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/sortableid"
	"github.com/getpup/pupkernel/es/store"
)

// StoreConfig contains configuration for the memory event store.
type StoreConfig struct {
	// Logger is an optional logger for observability.
	// If nil, logging is disabled (zero overhead).
	Logger es.Logger

	// Now is the clock used to stamp events without a sortable id.
	Now func() time.Time
}

// DefaultStoreConfig returns the default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Now: time.Now,
	}
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*StoreConfig)

// WithLogger sets a logger for the store.
func WithLogger(logger es.Logger) StoreOption {
	return func(c *StoreConfig) {
		c.Logger = logger
	}
}

// WithClock sets the clock used to stamp sortable ids.
func WithClock(now func() time.Time) StoreOption {
	return func(c *StoreConfig) {
		c.Now = now
	}
}

type stream struct {
	mu     sync.RWMutex
	events []es.Event
	ids    map[sortableid.ID]struct{}
	head   int64
	tail   sortableid.ID
}

// Store is a memory-backed event store. The zero value is not usable; call NewStore.
type Store struct {
	config      StoreConfig
	streams     sync.Map // es.PartitionKeys -> *stream
	checkpoints sync.Map // string -> sortableid.ID
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	config := DefaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Store{config: config}
}

var (
	_ store.Store           = (*Store)(nil)
	_ store.EventReader     = (*Store)(nil)
	_ store.CheckpointStore = (*Store)(nil)
)

func (s *Store) stream(keys es.PartitionKeys) *stream {
	if v, ok := s.streams.Load(keys); ok {
		return v.(*stream)
	}
	v, _ := s.streams.LoadOrStore(keys, &stream{ids: make(map[sortableid.ID]struct{})})
	return v.(*stream)
}

// Append implements store.EventStore.
//
//nolint:gocritic // hugeParam: partition keys are compared by value
func (s *Store) Append(ctx context.Context, keys es.PartitionKeys, expected es.ExpectedVersion, events []es.Event) ([]es.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, store.ErrNoEvents
	}

	st := s.stream(keys)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !expected.Matches(st.head) {
		if s.config.Logger != nil {
			s.config.Logger.Error(ctx, "expected version validation failed",
				"partition", keys.String(),
				"current_version", st.head,
				"expected_version", expected.String())
		}
		return nil, fmt.Errorf("%w: partition %s at version %d, expected %s",
			store.ErrVersionConflict, keys, st.head, expected)
	}

	prepared, err := store.PrepareBatch(keys, st.head, st.tail, events, s.config.Now)
	if err != nil {
		return nil, err
	}
	for i := range prepared {
		if _, dup := st.ids[prepared[i].SortableUniqueID]; dup {
			return nil, fmt.Errorf("%w: %s", store.ErrDuplicateSortableID, prepared[i].SortableUniqueID)
		}
	}

	for i := range prepared {
		st.ids[prepared[i].SortableUniqueID] = struct{}{}
	}
	st.events = append(st.events, prepared...)
	st.head = prepared[len(prepared)-1].Version
	if tail := store.TailID(prepared); tail.After(st.tail) {
		st.tail = tail
	}

	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "events appended",
			"partition", keys.String(),
			"event_count", len(prepared),
			"expected_version", expected.String(),
			"version_range", store.VersionRange(prepared))
	}

	out := make([]es.Event, len(prepared))
	copy(out, prepared)
	return out, nil
}

// ReadStream implements store.StreamReader.
//
//nolint:gocritic // hugeParam: partition keys are compared by value
func (s *Store) ReadStream(ctx context.Context, keys es.PartitionKeys, after sortableid.ID) ([]es.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := s.streams.Load(keys)
	if !ok {
		return nil, nil
	}
	st := v.(*stream)

	st.mu.RLock()
	var events []es.Event
	for i := range st.events {
		if st.events[i].SortableUniqueID > after {
			events = append(events, st.events[i])
		}
	}
	st.mu.RUnlock()

	return es.SortBySortableID(events), nil
}

// ReadEvents implements store.EventReader. Partitions are snapshotted one at a
// time, so a concurrent append may or may not be included.
func (s *Store) ReadEvents(ctx context.Context, after, before sortableid.ID, limit int) ([]es.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var events []es.Event
	s.streams.Range(func(_, v any) bool {
		st := v.(*stream)
		st.mu.RLock()
		for i := range st.events {
			id := st.events[i].SortableUniqueID
			if id > after && (before.IsZero() || id < before) {
				events = append(events, st.events[i])
			}
		}
		st.mu.RUnlock()
		return true
	})

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].SortableUniqueID < events[j].SortableUniqueID
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}

	if s.config.Logger != nil {
		s.config.Logger.Debug(ctx, "events read", "after", after.String(), "count", len(events))
	}
	return events, nil
}

// GetCheckpoint implements store.CheckpointStore.
func (s *Store) GetCheckpoint(_ context.Context, projection string) (sortableid.ID, error) {
	v, ok := s.checkpoints.Load(projection)
	if !ok {
		return "", nil
	}
	return v.(sortableid.ID), nil
}

// UpdateCheckpoint implements store.CheckpointStore.
func (s *Store) UpdateCheckpoint(_ context.Context, projection string, id sortableid.ID) error {
	s.checkpoints.Store(projection, id)
	return nil
}

// StreamVersion returns the head version of a partition, or 0 if it has no events.
//
//nolint:gocritic // hugeParam: partition keys are compared by value
func (s *Store) StreamVersion(keys es.PartitionKeys) int64 {
	v, ok := s.streams.Load(keys)
	if !ok {
		return 0
	}
	st := v.(*stream)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.head
}
