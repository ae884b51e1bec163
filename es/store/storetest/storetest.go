// Package storetest holds the behavior every event store backend must share.
// Backend test packages call Run with a factory returning a fresh, empty store.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/eventtype"
	"github.com/getpup/pupkernel/es/sortableid"
	"github.com/getpup/pupkernel/es/store"
)

// Backend is the full surface a store backend offers.
type Backend interface {
	store.Store
	store.EventReader
	store.CheckpointStore
}

// Recorded is the event payload used by the suite.
type Recorded struct {
	Seq  int    `json:"seq"`
	Note string `json:"note,omitempty"`
}

// EventType implements es.EventPayload.
func (Recorded) EventType() string { return "storetest.Recorded" }

// Log is the aggregate state used by the suite.
type Log struct {
	Seqs []int `json:"seqs"`
}

// AggregateType implements es.AggregatePayload.
func (Log) AggregateType() string { return "storetest.Log" }

// Projector appends each Recorded seq to the Log.
var Projector = es.ProjectorFunc{
	ProjectorName:    "storetest",
	ProjectorVersion: "1",
	Fn: func(state es.AggregatePayload, ev es.Event) es.AggregatePayload {
		r, ok := ev.Payload.(Recorded)
		if !ok {
			return state
		}
		var seqs []int
		if l, ok := state.(Log); ok {
			seqs = append(seqs, l.Seqs...)
		}
		return Log{Seqs: append(seqs, r.Seq)}
	},
}

// Register adds the suite's payload types to r.
func Register(r *eventtype.Registry) error {
	return errors.Join(
		eventtype.RegisterEvent[Recorded](r),
		eventtype.RegisterAggregate[Log](r),
	)
}

// NewRegistry returns a registry with the suite's payload types.
func NewRegistry() *eventtype.Registry {
	r := eventtype.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}

func recorded(seqs ...int) []es.Event {
	events := make([]es.Event, len(seqs))
	for i, seq := range seqs {
		events[i] = es.Event{Payload: Recorded{Seq: seq}}
	}
	return events
}

func at(base time.Time, seconds int, seq int) es.Event {
	return es.Event{
		Payload:          Recorded{Seq: seq},
		SortableUniqueID: sortableid.New(base.Add(time.Duration(seconds) * time.Second)),
	}
}

// Run executes the suite. newBackend must return an empty store each call.
func Run(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Helper()

	t.Run("append assigns versions", func(t *testing.T) {
		testAppendAssignsVersions(t, newBackend(t))
	})
	t.Run("expected version", func(t *testing.T) {
		testExpectedVersion(t, newBackend(t))
	})
	t.Run("rejected batch writes nothing", func(t *testing.T) {
		testRejectedBatch(t, newBackend(t))
	})
	t.Run("read stream orders by sortable id", func(t *testing.T) {
		testReadStreamOrder(t, newBackend(t))
	})
	t.Run("partitions are isolated", func(t *testing.T) {
		testPartitionIsolation(t, newBackend(t))
	})
	t.Run("read events window", func(t *testing.T) {
		testReadEventsWindow(t, newBackend(t))
	})
	t.Run("checkpoints", func(t *testing.T) {
		testCheckpoints(t, newBackend(t))
	})
	t.Run("load folds stream", func(t *testing.T) {
		testLoad(t, newBackend(t))
	})
	t.Run("stamped ids follow the tail", func(t *testing.T) {
		testStampedIDsFollowTail(t, newBackend(t))
	})
}

func testAppendAssignsVersions(t *testing.T, s Backend) {
	ctx := context.Background()
	keys := es.NewPartitionKeys("storetest", "")

	first, err := s.Append(ctx, keys, es.NoStream(), recorded(1, 2))
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(1), first[0].Version)
	assert.Equal(t, int64(2), first[1].Version)
	for _, ev := range first {
		assert.Equal(t, keys, ev.PartitionKeys)
		assert.NoError(t, ev.SortableUniqueID.Validate())
	}

	second, err := s.Append(ctx, keys, es.Exact(2), recorded(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), second[0].Version)

	events, err := s.ReadStream(ctx, keys, "")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, Recorded{Seq: i + 1}, ev.Payload)
		assert.Equal(t, int64(i+1), ev.Version)
	}
}

func testExpectedVersion(t *testing.T, s Backend) {
	ctx := context.Background()
	keys := es.NewPartitionKeys("storetest", "")

	_, err := s.Append(ctx, keys, es.Exact(3), recorded(1))
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	_, err = s.Append(ctx, keys, es.Exact(0), recorded(1))
	require.NoError(t, err)

	_, err = s.Append(ctx, keys, es.NoStream(), recorded(2))
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	_, err = s.Append(ctx, keys, es.Exact(0), recorded(2))
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	appended, err := s.Append(ctx, keys, es.Any(), recorded(2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), appended[0].Version)
}

func testRejectedBatch(t *testing.T, s Backend) {
	ctx := context.Background()
	keys := es.NewPartitionKeys("storetest", "")

	_, err := s.Append(ctx, keys, es.Any(), nil)
	assert.ErrorIs(t, err, store.ErrNoEvents)

	id := sortableid.New(time.Now())
	_, err = s.Append(ctx, keys, es.NoStream(), []es.Event{{Payload: Recorded{Seq: 1}, SortableUniqueID: id}})
	require.NoError(t, err)

	// the duplicate is second in the batch, so the first event must roll back too
	_, err = s.Append(ctx, keys, es.Exact(1), []es.Event{
		{Payload: Recorded{Seq: 2}},
		{Payload: Recorded{Seq: 3}, SortableUniqueID: id},
	})
	require.Error(t, err)
	assert.True(t,
		errors.Is(err, store.ErrDuplicateSortableID) || errors.Is(err, store.ErrVersionConflict),
		"unexpected error: %v", err)

	other := es.ExistingPartitionKeys(keys.AggregateID, "another-group", "")
	_, err = s.Append(ctx, keys, es.Exact(1), []es.Event{{Payload: Recorded{Seq: 4}, PartitionKeys: other}})
	assert.ErrorIs(t, err, store.ErrPartitionMismatch)

	events, err := s.ReadStream(ctx, keys, "")
	require.NoError(t, err)
	require.Len(t, events, 1)

	next, err := s.Append(ctx, keys, es.Exact(1), recorded(5))
	require.NoError(t, err)
	assert.Equal(t, int64(2), next[0].Version)
}

func testReadStreamOrder(t *testing.T, s Backend) {
	ctx := context.Background()
	keys := es.NewPartitionKeys("storetest", "")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.Append(ctx, keys, es.NoStream(), []es.Event{at(base, 2, 2)})
	require.NoError(t, err)
	_, err = s.Append(ctx, keys, es.Exact(1), []es.Event{at(base, 0, 0), at(base, 1, 1)})
	require.NoError(t, err)

	events, err := s.ReadStream(ctx, keys, "")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, Recorded{Seq: 0}, events[0].Payload)
	assert.Equal(t, int64(2), events[0].Version)
	assert.Equal(t, Recorded{Seq: 2}, events[2].Payload)
	assert.Equal(t, int64(1), events[2].Version)

	tail, err := s.ReadStream(ctx, keys, events[0].SortableUniqueID)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, Recorded{Seq: 1}, tail[0].Payload)

	none, err := s.ReadStream(ctx, es.NewPartitionKeys("storetest", ""), "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testPartitionIsolation(t *testing.T, s Backend) {
	ctx := context.Background()
	a := es.NewPartitionKeys("storetest", "")
	b := es.ExistingPartitionKeys(a.AggregateID, "storetest", "tenant-b")
	c := es.ExistingPartitionKeys(a.AggregateID, "other", "")

	for i, keys := range []es.PartitionKeys{a, b, c} {
		_, err := s.Append(ctx, keys, es.NoStream(), recorded(i))
		require.NoError(t, err)
	}

	for i, keys := range []es.PartitionKeys{a, b, c} {
		events, err := s.ReadStream(ctx, keys, "")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, Recorded{Seq: i}, events[0].Payload)
		assert.Equal(t, keys, events[0].PartitionKeys)
		assert.Equal(t, int64(1), events[0].Version)
	}
}

func testReadEventsWindow(t *testing.T, s Backend) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := es.NewPartitionKeys("storetest", "")
	b := es.NewPartitionKeys("storetest", "")

	_, err := s.Append(ctx, a, es.NoStream(), []es.Event{at(base, 0, 0), at(base, 2, 2)})
	require.NoError(t, err)
	_, err = s.Append(ctx, b, es.NoStream(), []es.Event{at(base, 1, 1), at(base, 3, 3)})
	require.NoError(t, err)

	all, err := s.ReadEvents(ctx, "", "", 100)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, ev := range all {
		assert.Equal(t, Recorded{Seq: i}, ev.Payload)
	}

	window, err := s.ReadEvents(ctx, all[0].SortableUniqueID, all[3].SortableUniqueID, 100)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, b, window[0].PartitionKeys)
	assert.Equal(t, a, window[1].PartitionKeys)

	limited, err := s.ReadEvents(ctx, "", "", 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)
}

func testCheckpoints(t *testing.T, s Backend) {
	ctx := context.Background()

	cp, err := s.GetCheckpoint(ctx, "storetest")
	require.NoError(t, err)
	assert.True(t, cp.IsZero())

	first := sortableid.New(time.Now())
	require.NoError(t, s.UpdateCheckpoint(ctx, "storetest", first))
	second := sortableid.New(time.Now().Add(time.Second))
	require.NoError(t, s.UpdateCheckpoint(ctx, "storetest", second))

	cp, err = s.GetCheckpoint(ctx, "storetest")
	require.NoError(t, err)
	assert.Equal(t, second, cp)

	other, err := s.GetCheckpoint(ctx, "other")
	require.NoError(t, err)
	assert.True(t, other.IsZero())
}

func testLoad(t *testing.T, s Backend) {
	ctx := context.Background()
	keys := es.NewPartitionKeys("storetest", "")

	empty, err := store.Load(ctx, s, keys, Projector)
	require.NoError(t, err)
	assert.Equal(t, es.EmptyAggregate(keys), empty)

	_, err = s.Append(ctx, keys, es.NoStream(), recorded(1, 2, 3))
	require.NoError(t, err)

	agg, err := store.Load(ctx, s, keys, Projector)
	require.NoError(t, err)
	assert.Equal(t, Log{Seqs: []int{1, 2, 3}}, agg.Payload)
	assert.Equal(t, int64(3), agg.Version)

	again, err := store.Load(ctx, s, keys, Projector)
	require.NoError(t, err)
	assert.Equal(t, agg, again)
}

// testStampedIDsFollowTail stores an event stamped an hour ahead of the
// backend clock, as a writer with a fast clock would, then appends unstamped
// events. They must still fold after it.
func testStampedIDsFollowTail(t *testing.T, s Backend) {
	ctx := context.Background()
	keys := es.NewPartitionKeys("storetest", "")
	ahead := sortableid.New(time.Now().Add(time.Hour))

	_, err := s.Append(ctx, keys, es.NoStream(), []es.Event{{Payload: Recorded{Seq: 1}, SortableUniqueID: ahead}})
	require.NoError(t, err)

	appended, err := s.Append(ctx, keys, es.Exact(1), recorded(2, 3))
	require.NoError(t, err)
	require.Len(t, appended, 2)
	assert.True(t, appended[0].SortableUniqueID.After(ahead), "%s should sort after %s", appended[0].SortableUniqueID, ahead)
	assert.True(t, appended[1].SortableUniqueID.After(appended[0].SortableUniqueID))

	agg, err := store.Load(ctx, s, keys, Projector)
	require.NoError(t, err)
	assert.Equal(t, Log{Seqs: []int{1, 2, 3}}, agg.Payload)
	assert.Equal(t, int64(3), agg.Version)
	assert.Equal(t, appended[1].SortableUniqueID, agg.LastSortableUniqueID)
}
