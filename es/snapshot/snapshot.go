// Package snapshot caches projected aggregates so loads replay only the tail
// of a stream.
//
// A snapshot is keyed by partition and by projector name and version, so a
// projector whose fold changed never reads state produced by the old fold.
// Snapshots are written only once their last event is older than
// sortableid.Safe(now): events that late writers may still insert before it
// would otherwise be hidden behind the cached state.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/sortableid"
	"github.com/getpup/pupkernel/es/store"
)

// ErrNotFound is returned by Store.Get when no snapshot exists for a key.
var ErrNotFound = errors.New("snapshot not found")

// Key identifies one cached aggregate.
type Key struct {
	PartitionKeys    es.PartitionKeys
	Projector        string
	ProjectorVersion string
}

// KeyFor returns the key of the aggregate p folds for keys.
//
//nolint:gocritic // hugeParam: partition keys are compared by value
func KeyFor(keys es.PartitionKeys, p es.Projector) Key {
	return Key{
		PartitionKeys:    keys,
		Projector:        p.Name(),
		ProjectorVersion: p.Version(),
	}
}

// String renders the key as a flat path, usable as a cache key.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s@%s",
		k.PartitionKeys.RootPartitionKey, k.PartitionKeys.Group, k.PartitionKeys.AggregateID,
		k.Projector, k.ProjectorVersion)
}

// Snapshot is a cached aggregate and the stream head it was folded at.
type Snapshot struct {
	Aggregate     es.Aggregate
	StreamVersion int64
}

// Store persists snapshots.
type Store interface {
	// Get returns the snapshot for key, or ErrNotFound.
	Get(ctx context.Context, key Key) (Snapshot, error)

	// Put stores snap under key, replacing any previous snapshot.
	Put(ctx context.Context, key Key, snap Snapshot) error
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[Key]Snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[Key]Snapshot)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key Key) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[key]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// Put implements Store.
//
//nolint:gocritic // hugeParam: snapshots are stored by value
func (m *MemoryStore) Put(_ context.Context, key Key, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[key] = snap
	return nil
}

// Len returns the number of cached snapshots.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// Logger is an optional logger for observability.
	// If nil, logging is disabled (zero overhead).
	Logger es.Logger

	// Now is the clock used for the safe boundary.
	Now func() time.Time
}

// LoaderOption is a functional option for configuring a Loader.
type LoaderOption func(*LoaderConfig)

// WithLogger sets a logger for the loader.
func WithLogger(logger es.Logger) LoaderOption {
	return func(c *LoaderConfig) {
		c.Logger = logger
	}
}

// WithClock sets the clock used for the safe boundary.
func WithClock(now func() time.Time) LoaderOption {
	return func(c *LoaderConfig) {
		c.Now = now
	}
}

// Loader is a store.AggregateLoader that starts from a cached snapshot.
type Loader struct {
	reader store.StreamReader
	cache  Store
	config LoaderConfig
}

var _ store.AggregateLoader = (*Loader)(nil)

// NewLoader creates a Loader reading streams from reader and snapshots from cache.
func NewLoader(reader store.StreamReader, cache Store, opts ...LoaderOption) *Loader {
	config := LoaderConfig{Now: time.Now}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Loader{reader: reader, cache: cache, config: config}
}

// LoadAggregate implements store.AggregateLoader.
//
// A cache failure is logged and degrades to a full replay; only stream read
// errors are returned.
//
//nolint:gocritic // hugeParam: partition keys are compared by value
func (l *Loader) LoadAggregate(ctx context.Context, keys es.PartitionKeys, p es.Projector) (store.Loaded, error) {
	key := KeyFor(keys, p)

	snap, err := l.cache.Get(ctx, key)
	switch {
	case err == nil:
		loaded, ok, err := l.fromSnapshot(ctx, key, snap, p)
		if err != nil {
			return store.Loaded{}, err
		}
		if ok {
			return loaded, nil
		}
	case errors.Is(err, ErrNotFound):
		if l.config.Logger != nil {
			l.config.Logger.Debug(ctx, "snapshot miss", "key", key.String())
		}
	default:
		if l.config.Logger != nil {
			l.config.Logger.Error(ctx, "snapshot read failed", "key", key.String(), "error", err)
		}
	}

	loaded, err := store.StreamLoader{Reader: l.reader}.LoadAggregate(ctx, keys, p)
	if err != nil {
		return store.Loaded{}, err
	}
	l.save(ctx, key, loaded)
	return loaded, nil
}

// fromSnapshot replays the tail after snap. It reports false when the tail
// does not continue the snapshot's versions, meaning an event landed before
// the snapshot's last id and a full replay is needed.
//
//nolint:gocritic // hugeParam: snapshots are passed by value
func (l *Loader) fromSnapshot(ctx context.Context, key Key, snap Snapshot, p es.Projector) (store.Loaded, bool, error) {
	tail, err := l.reader.ReadStream(ctx, key.PartitionKeys, snap.Aggregate.LastSortableUniqueID)
	if err != nil {
		return store.Loaded{}, false, fmt.Errorf("read stream %s: %w", key.PartitionKeys, err)
	}

	if !continues(snap.StreamVersion, tail) {
		if l.config.Logger != nil {
			l.config.Logger.Info(ctx, "snapshot stale, replaying stream",
				"key", key.String(),
				"snapshot_version", snap.StreamVersion,
				"tail_count", len(tail))
		}
		return store.Loaded{}, false, nil
	}

	if l.config.Logger != nil {
		l.config.Logger.Debug(ctx, "snapshot hit",
			"key", key.String(),
			"snapshot_version", snap.StreamVersion,
			"tail_count", len(tail))
	}

	loaded := store.Loaded{
		Aggregate:     snap.Aggregate.ProjectAll(tail, p),
		StreamVersion: snap.StreamVersion + int64(len(tail)),
	}
	if len(tail) > 0 {
		l.save(ctx, key, loaded)
	}
	return loaded, true, nil
}

// continues reports whether tail holds exactly versions head+1 .. head+len(tail).
// Versions are unique within a partition, so a range check suffices.
func continues(head int64, tail []es.Event) bool {
	limit := head + int64(len(tail))
	for i := range tail {
		if v := tail[i].Version; v <= head || v > limit {
			return false
		}
	}
	return true
}

//nolint:gocritic // hugeParam: loaded aggregates are passed by value
func (l *Loader) save(ctx context.Context, key Key, loaded store.Loaded) {
	last := loaded.Aggregate.LastSortableUniqueID
	if last.IsZero() || !last.Before(sortableid.Safe(l.config.Now())) {
		return
	}
	snap := Snapshot{Aggregate: loaded.Aggregate, StreamVersion: loaded.StreamVersion}
	if err := l.cache.Put(ctx, key, snap); err != nil {
		if l.config.Logger != nil {
			l.config.Logger.Error(ctx, "snapshot write failed", "key", key.String(), "error", err)
		}
		return
	}
	if l.config.Logger != nil {
		l.config.Logger.Debug(ctx, "snapshot stored",
			"key", key.String(),
			"stream_version", loaded.StreamVersion)
	}
}
