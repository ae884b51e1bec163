// Package store provides event store abstractions shared by every backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/sortableid"
)

var (
	// ErrVersionConflict indicates the partition head did not match the
	// expected version, or a concurrent writer claimed the same version first.
	ErrVersionConflict = errors.New("optimistic concurrency conflict")

	// ErrStorageUnavailable wraps backend I/O failures.
	ErrStorageUnavailable = errors.New("event storage unavailable")

	// ErrNoEvents indicates an attempt to append zero events.
	ErrNoEvents = errors.New("no events to append")

	// ErrDuplicateSortableID indicates an event whose sortable id already
	// exists in the partition.
	ErrDuplicateSortableID = errors.New("duplicate sortable unique id in partition")

	// ErrPartitionMismatch indicates an event that names a different
	// partition than the one being appended to.
	ErrPartitionMismatch = errors.New("event belongs to another partition")
)

// EventStore appends events to a partition.
type EventStore interface {
	// Append atomically appends events to the partition identified by keys.
	//
	// The store assigns Version head+1, head+2, ... in slice order, keeps a
	// pre-stamped SortableUniqueID and stamps one otherwise, and fills empty
	// PartitionKeys. The returned slice holds the events as persisted.
	//
	// Returns ErrVersionConflict when expected does not match the head,
	// ErrNoEvents for an empty batch and ErrPartitionMismatch when an event
	// names another partition. Nothing is written when an error is returned.
	Append(ctx context.Context, keys es.PartitionKeys, expected es.ExpectedVersion, events []es.Event) ([]es.Event, error)
}

// StreamReader reads one partition.
type StreamReader interface {
	// ReadStream returns the partition's events whose sortable id is greater
	// than after, ordered by sortable id. An empty after reads everything.
	// A partition that has never been written returns no events and no error.
	ReadStream(ctx context.Context, keys es.PartitionKeys, after sortableid.ID) ([]es.Event, error)
}

// EventReader reads across partitions, for projections.
type EventReader interface {
	// ReadEvents returns up to limit events with after < id < before, ordered
	// by sortable id. An empty before means no upper bound.
	ReadEvents(ctx context.Context, after, before sortableid.ID, limit int) ([]es.Event, error)
}

// CheckpointStore records how far a named projection has read.
type CheckpointStore interface {
	// GetCheckpoint returns the last processed sortable id, or "" if the
	// projection has not processed anything.
	GetCheckpoint(ctx context.Context, projection string) (sortableid.ID, error)

	// UpdateCheckpoint records id as the last processed sortable id.
	UpdateCheckpoint(ctx context.Context, projection string, id sortableid.ID) error
}

// Store is the read-write pair the command executor needs.
type Store interface {
	EventStore
	StreamReader
}

// Loaded is an aggregate together with the head version of its stream.
//
// Version on the aggregate is the version of the last event in sortable id
// order. StreamVersion is the highest version ever appended, which is what the
// next Append must expect. The two differ only when events were appended out
// of id order.
type Loaded struct {
	Aggregate     es.Aggregate
	StreamVersion int64
}

// AggregateLoader materializes a partition's aggregate.
type AggregateLoader interface {
	LoadAggregate(ctx context.Context, keys es.PartitionKeys, p es.Projector) (Loaded, error)
}

// StreamLoader loads by replaying the whole stream.
type StreamLoader struct {
	Reader StreamReader
}

// LoadAggregate implements AggregateLoader.
func (l StreamLoader) LoadAggregate(ctx context.Context, keys es.PartitionKeys, p es.Projector) (Loaded, error) {
	events, err := l.Reader.ReadStream(ctx, keys, "")
	if err != nil {
		return Loaded{}, fmt.Errorf("read stream %s: %w", keys, err)
	}
	return Loaded{
		Aggregate:     es.Fold(keys, events, p),
		StreamVersion: HeadVersion(events),
	}, nil
}

// Load rebuilds the aggregate of a partition from its full stream.
// A partition with no events yields the version 0 EmptyPayload aggregate.
func Load(ctx context.Context, r StreamReader, keys es.PartitionKeys, p es.Projector) (es.Aggregate, error) {
	loaded, err := StreamLoader{Reader: r}.LoadAggregate(ctx, keys, p)
	if err != nil {
		return es.Aggregate{}, err
	}
	return loaded.Aggregate, nil
}

// HeadVersion returns the highest version among events, or 0.
func HeadVersion(events []es.Event) int64 {
	var head int64
	for i := range events {
		if events[i].Version > head {
			head = events[i].Version
		}
	}
	return head
}

// PrepareBatch validates a batch against its target partition and returns
// a copy with keys, versions and missing sortable ids filled in. Backends call
// it once they know the head version and tail, the highest sortable id in the
// partition. A stamped id sorts after the tail and after every event before it
// in the batch, so a writer whose clock lags the stream still appends to the
// end of the fold order. Pre-stamped ids are kept as given.
func PrepareBatch(keys es.PartitionKeys, head int64, tail sortableid.ID, events []es.Event, now func() time.Time) ([]es.Event, error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}
	if err := keys.Validate(); err != nil {
		return nil, err
	}

	prepared := make([]es.Event, len(events))
	seen := make(map[sortableid.ID]struct{}, len(events))
	last := tail
	for i := range events {
		ev := events[i]
		if ev.Payload == nil {
			return nil, fmt.Errorf("event %d: nil payload", i)
		}
		if ev.PartitionKeys.IsZero() {
			ev.PartitionKeys = keys
		} else if ev.PartitionKeys != keys {
			return nil, fmt.Errorf("%w: event %d targets %s, appending to %s", ErrPartitionMismatch, i, ev.PartitionKeys, keys)
		}
		if ev.SortableUniqueID.IsZero() {
			ev.SortableUniqueID = sortableid.Next(last, now())
		} else if err := ev.SortableUniqueID.Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if _, dup := seen[ev.SortableUniqueID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSortableID, ev.SortableUniqueID)
		}
		seen[ev.SortableUniqueID] = struct{}{}
		if ev.SortableUniqueID.After(last) {
			last = ev.SortableUniqueID
		}
		ev.Version = head + 1 + int64(i)
		prepared[i] = ev
	}
	return prepared, nil
}

// TailID returns the highest sortable id among events, or "".
func TailID(events []es.Event) sortableid.ID {
	var tail sortableid.ID
	for i := range events {
		if events[i].SortableUniqueID.After(tail) {
			tail = events[i].SortableUniqueID
		}
	}
	return tail
}

// VersionRange formats the versions of a persisted batch for logging.
func VersionRange(events []es.Event) string {
	if len(events) == 0 {
		return ""
	}
	return fmt.Sprintf("%d-%d", events[0].Version, events[len(events)-1].Version)
}
