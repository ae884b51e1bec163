// Package redis provides a Redis-backed snapshot cache.
//
// Snapshots are stored as JSON documents under "<prefix><key>", with payloads
// encoded through the event type registry. An optional TTL lets Redis evict
// snapshots of partitions that are no longer loaded.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/eventtype"
	"github.com/getpup/pupkernel/es/snapshot"
	"github.com/getpup/pupkernel/es/sortableid"
)

// SnapshotStoreConfig contains configuration for the Redis snapshot store.
type SnapshotStoreConfig struct {
	// Prefix is prepended to every key.
	Prefix string

	// TTL is the expiry of each snapshot. Zero keeps snapshots forever.
	TTL time.Duration
}

// DefaultSnapshotStoreConfig returns the default configuration.
func DefaultSnapshotStoreConfig() SnapshotStoreConfig {
	return SnapshotStoreConfig{
		Prefix: "pupkernel:snapshot:",
		TTL:    24 * time.Hour,
	}
}

// SnapshotStoreOption is a functional option for configuring a SnapshotStore.
type SnapshotStoreOption func(*SnapshotStoreConfig)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) SnapshotStoreOption {
	return func(c *SnapshotStoreConfig) {
		c.Prefix = prefix
	}
}

// WithTTL sets the snapshot expiry.
func WithTTL(ttl time.Duration) SnapshotStoreOption {
	return func(c *SnapshotStoreConfig) {
		c.TTL = ttl
	}
}

// SnapshotStore implements snapshot.Store on Redis.
type SnapshotStore struct {
	rdb      goredis.Cmdable
	registry *eventtype.Registry
	config   SnapshotStoreConfig
}

var _ snapshot.Store = (*SnapshotStore)(nil)

// NewSnapshotStore creates a snapshot store on rdb. Aggregate payload types
// must be registered in registry.
func NewSnapshotStore(rdb goredis.Cmdable, registry *eventtype.Registry, opts ...SnapshotStoreOption) *SnapshotStore {
	config := DefaultSnapshotStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &SnapshotStore{rdb: rdb, registry: registry, config: config}
}

// document is the stored form of a snapshot.
type document struct {
	RootPartitionKey     string          `json:"root_partition_key"`
	Group                string          `json:"group"`
	AggregateID          string          `json:"aggregate_id"`
	AggregateType        string          `json:"aggregate_type"`
	Payload              json.RawMessage `json:"payload"`
	Version              int64           `json:"version"`
	LastSortableUniqueID string          `json:"last_sortable_unique_id"`
	StreamVersion        int64           `json:"stream_version"`
}

func (s *SnapshotStore) key(key snapshot.Key) string {
	return s.config.Prefix + key.String()
}

// Get implements snapshot.Store.
func (s *SnapshotStore) Get(ctx context.Context, key snapshot.Key) (snapshot.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return snapshot.Snapshot{}, snapshot.ErrNotFound
	}
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("redis get %s: %w", key, err)
	}
	return s.decode(key, raw)
}

// Put implements snapshot.Store.
//
//nolint:gocritic // hugeParam: snapshots are stored by value
func (s *SnapshotStore) Put(ctx context.Context, key snapshot.Key, snap snapshot.Snapshot) error {
	raw, err := s.encode(snap)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(key), raw, s.config.TTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

//nolint:gocritic // hugeParam: snapshots are stored by value
func (s *SnapshotStore) encode(snap snapshot.Snapshot) ([]byte, error) {
	agg := snap.Aggregate
	aggregateType, payload, err := s.registry.EncodeAggregate(agg.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(document{
		RootPartitionKey:     agg.PartitionKeys.RootPartitionKey,
		Group:                agg.PartitionKeys.Group,
		AggregateID:          agg.PartitionKeys.AggregateID.String(),
		AggregateType:        aggregateType,
		Payload:              payload,
		Version:              agg.Version,
		LastSortableUniqueID: agg.LastSortableUniqueID.String(),
		StreamVersion:        snap.StreamVersion,
	})
}

func (s *SnapshotStore) decode(key snapshot.Key, raw []byte) (snapshot.Snapshot, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}

	payload, err := s.registry.DecodeAggregate(doc.AggregateType, doc.Payload)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	var last sortableid.ID
	if doc.LastSortableUniqueID != "" {
		if last, err = sortableid.Parse(doc.LastSortableUniqueID); err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", key, err)
		}
	}

	return snapshot.Snapshot{
		Aggregate: es.Aggregate{
			Payload:              payload,
			PartitionKeys:        key.PartitionKeys,
			Version:              doc.Version,
			LastSortableUniqueID: last,
		},
		StreamVersion: doc.StreamVersion,
	}, nil
}
