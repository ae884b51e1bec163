package snapshot_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/adapters/memory"
	"github.com/getpup/pupkernel/es/snapshot"
	"github.com/getpup/pupkernel/es/sortableid"
	"github.com/getpup/pupkernel/es/store"
	"github.com/getpup/pupkernel/es/store/storetest"
)

var base = time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

func at(seconds, seq int) es.Event {
	return es.Event{
		Payload:          storetest.Recorded{Seq: seq},
		SortableUniqueID: sortableid.New(base.Add(time.Duration(seconds) * time.Second)),
	}
}

// countingReader records the after argument of every ReadStream call.
type countingReader struct {
	store.StreamReader
	afters []sortableid.ID
}

func (r *countingReader) ReadStream(ctx context.Context, keys es.PartitionKeys, after sortableid.ID) ([]es.Event, error) {
	r.afters = append(r.afters, after)
	return r.StreamReader.ReadStream(ctx, keys, after)
}

type failingCache struct{}

func (failingCache) Get(context.Context, snapshot.Key) (snapshot.Snapshot, error) {
	return snapshot.Snapshot{}, errors.New("cache down")
}

func (failingCache) Put(context.Context, snapshot.Key, snapshot.Snapshot) error {
	return errors.New("cache down")
}

func TestKey(t *testing.T) {
	keys := es.NewPartitionKeys("Ledger", "tenant")
	key := snapshot.KeyFor(keys, storetest.Projector)

	assert.Equal(t, "storetest", key.Projector)
	assert.Equal(t, "1", key.ProjectorVersion)
	assert.Equal(t, "tenant/Ledger/"+keys.AggregateID.String()+"/storetest@1", key.String())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := snapshot.NewMemoryStore()
	key := snapshot.KeyFor(es.NewPartitionKeys("Ledger", ""), storetest.Projector)

	_, err := m.Get(ctx, key)
	assert.ErrorIs(t, err, snapshot.ErrNotFound)

	snap := snapshot.Snapshot{StreamVersion: 4}
	require.NoError(t, m.Put(ctx, key, snap))
	got, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
	assert.Equal(t, 1, m.Len())
}

func TestLoader_MatchesFullReplay(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	keys := es.NewPartitionKeys("Ledger", "")
	_, err := s.Append(ctx, keys, es.NoStream(), []es.Event{at(0, 1), at(1, 2)})
	require.NoError(t, err)

	cache := snapshot.NewMemoryStore()
	reader := &countingReader{StreamReader: s}
	loader := snapshot.NewLoader(reader, cache, snapshot.WithClock(func() time.Time { return base.Add(time.Minute) }))

	first, err := loader.LoadAggregate(ctx, keys, storetest.Projector)
	require.NoError(t, err)
	assert.Equal(t, storetest.Log{Seqs: []int{1, 2}}, first.Aggregate.Payload)
	assert.Equal(t, int64(2), first.StreamVersion)
	assert.Equal(t, 1, cache.Len())

	_, err = s.Append(ctx, keys, es.Exact(2), []es.Event{at(2, 3)})
	require.NoError(t, err)

	second, err := loader.LoadAggregate(ctx, keys, storetest.Projector)
	require.NoError(t, err)
	full, err := store.StreamLoader{Reader: s}.LoadAggregate(ctx, keys, storetest.Projector)
	require.NoError(t, err)
	assert.Equal(t, full, second)

	// the second load only read the tail after the snapshot
	require.Len(t, reader.afters, 2)
	assert.True(t, reader.afters[0].IsZero())
	assert.Equal(t, first.Aggregate.LastSortableUniqueID, reader.afters[1])
}

func TestLoader_SkipsUnsafeSnapshots(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	keys := es.NewPartitionKeys("Ledger", "")
	_, err := s.Append(ctx, keys, es.NoStream(), []es.Event{at(0, 1)})
	require.NoError(t, err)

	cache := snapshot.NewMemoryStore()
	// the event is 2s old, inside the 5s skew window
	loader := snapshot.NewLoader(s, cache, snapshot.WithClock(func() time.Time { return base.Add(2 * time.Second) }))

	loaded, err := loader.LoadAggregate(ctx, keys, storetest.Projector)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.StreamVersion)
	assert.Zero(t, cache.Len())
}

func TestLoader_EmptyStreamNotCached(t *testing.T) {
	cache := snapshot.NewMemoryStore()
	loader := snapshot.NewLoader(memory.NewStore(), cache)
	keys := es.NewPartitionKeys("Ledger", "")

	loaded, err := loader.LoadAggregate(context.Background(), keys, storetest.Projector)
	require.NoError(t, err)
	assert.Equal(t, es.EmptyAggregate(keys), loaded.Aggregate)
	assert.Zero(t, cache.Len())
}

func TestLoader_LateEventForcesReplay(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	keys := es.NewPartitionKeys("Ledger", "")
	_, err := s.Append(ctx, keys, es.NoStream(), []es.Event{at(10, 1), at(20, 2)})
	require.NoError(t, err)

	cache := snapshot.NewMemoryStore()
	loader := snapshot.NewLoader(s, cache, snapshot.WithClock(func() time.Time { return base.Add(time.Minute) }))
	_, err = loader.LoadAggregate(ctx, keys, storetest.Projector)
	require.NoError(t, err)

	// v3 sorts before the snapshot's last event, v4 after it
	_, err = s.Append(ctx, keys, es.Exact(2), []es.Event{at(15, 3), at(30, 4)})
	require.NoError(t, err)

	loaded, err := loader.LoadAggregate(ctx, keys, storetest.Projector)
	require.NoError(t, err)
	assert.Equal(t, storetest.Log{Seqs: []int{1, 3, 2, 4}}, loaded.Aggregate.Payload)
	assert.Equal(t, int64(4), loaded.StreamVersion)
}

func TestLoader_ProjectorVersionIsolation(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	keys := es.NewPartitionKeys("Ledger", "")
	_, err := s.Append(ctx, keys, es.NoStream(), []es.Event{at(0, 1)})
	require.NoError(t, err)

	cache := snapshot.NewMemoryStore()
	loader := snapshot.NewLoader(s, cache, snapshot.WithClock(func() time.Time { return base.Add(time.Minute) }))
	_, err = loader.LoadAggregate(ctx, keys, storetest.Projector)
	require.NoError(t, err)

	v2 := storetest.Projector
	v2.ProjectorVersion = "2"
	_, err = loader.LoadAggregate(ctx, keys, v2)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
}

func TestLoader_CacheFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	keys := es.NewPartitionKeys("Ledger", "")
	_, err := s.Append(ctx, keys, es.NoStream(), []es.Event{at(0, 1)})
	require.NoError(t, err)

	loader := snapshot.NewLoader(s, failingCache{}, snapshot.WithClock(func() time.Time { return base.Add(time.Minute) }))
	loaded, err := loader.LoadAggregate(ctx, keys, storetest.Projector)
	require.NoError(t, err)
	assert.Equal(t, storetest.Log{Seqs: []int{1}}, loaded.Aggregate.Payload)
}
