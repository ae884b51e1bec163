package es

import (
	"errors"
	"fmt"
	"sort"

	"github.com/getpup/pupkernel/es/sortableid"
)

// ErrAggregateType indicates an aggregate payload of an unexpected type.
var ErrAggregateType = errors.New("unexpected aggregate payload type")

// Aggregate is the materialized state of one partition.
// It is derived, never persisted directly: Version always equals the version
// of the last folded event, or 0 when nothing has been folded.
type Aggregate struct {
	Payload              AggregatePayload
	PartitionKeys        PartitionKeys
	Version              int64
	LastSortableUniqueID sortableid.ID
}

// EmptyAggregate returns the version 0 aggregate of a partition.
func EmptyAggregate(keys PartitionKeys) Aggregate {
	return Aggregate{
		Payload:       EmptyPayload{},
		PartitionKeys: keys,
	}
}

// IsEmpty reports whether the aggregate is still in its zero state.
func (a Aggregate) IsEmpty() bool {
	return IsEmptyPayload(a.Payload)
}

// PayloadType returns the aggregate type of the current payload.
func (a Aggregate) PayloadType() string {
	if a.Payload == nil {
		return EmptyPayloadType
	}
	return a.Payload.AggregateType()
}

// Project applies one event and returns the next aggregate.
// A projector returning nil leaves the payload unchanged.
//
//nolint:gocritic // hugeParam: events are passed by value to keep them immutable
func (a Aggregate) Project(ev Event, p Projector) Aggregate {
	state := a.Payload
	if state == nil {
		state = EmptyPayload{}
	}
	next := p.Project(state, ev)
	if next == nil {
		next = state
	}
	return Aggregate{
		Payload:              next,
		PartitionKeys:        a.PartitionKeys,
		Version:              ev.Version,
		LastSortableUniqueID: ev.SortableUniqueID,
	}
}

// ProjectAll applies events in the order given.
func (a Aggregate) ProjectAll(events []Event, p Projector) Aggregate {
	for i := range events {
		a = a.Project(events[i], p)
	}
	return a
}

// Fold rebuilds a partition's aggregate from its events. Events are sorted by
// sortable id before folding, so the result does not depend on the order in
// which they were appended or read.
func Fold(keys PartitionKeys, events []Event, p Projector) Aggregate {
	return EmptyAggregate(keys).ProjectAll(SortBySortableID(events), p)
}

// SortBySortableID returns a copy of events ordered by sortable id. Events
// sharing an id keep their relative order.
func SortBySortableID(events []Event) []Event {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SortableUniqueID < sorted[j].SortableUniqueID
	})
	return sorted
}

// Typed is an aggregate whose payload has a known concrete type.
type Typed[T AggregatePayload] struct {
	Payload              T
	PartitionKeys        PartitionKeys
	Version              int64
	LastSortableUniqueID sortableid.ID
}

// As converts a to a Typed view. It fails with ErrAggregateType when the
// payload is not a T.
//
//nolint:gocritic // hugeParam: aggregates are values
func As[T AggregatePayload](a Aggregate) (Typed[T], error) {
	payload, ok := a.Payload.(T)
	if !ok {
		var want T
		return Typed[T]{}, fmt.Errorf("%w: have %s, want %T", ErrAggregateType, a.PayloadType(), want)
	}
	return Typed[T]{
		Payload:              payload,
		PartitionKeys:        a.PartitionKeys,
		Version:              a.Version,
		LastSortableUniqueID: a.LastSortableUniqueID,
	}, nil
}

// Untyped converts a typed view back to an Aggregate.
func (t Typed[T]) Untyped() Aggregate {
	return Aggregate{
		Payload:              t.Payload,
		PartitionKeys:        t.PartitionKeys,
		Version:              t.Version,
		LastSortableUniqueID: t.LastSortableUniqueID,
	}
}
