package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/adapters/memory"
	"github.com/getpup/pupkernel/es/sortableid"
	"github.com/getpup/pupkernel/es/store"
	"github.com/getpup/pupkernel/es/store/storetest"
)

type ticked struct{ N int }

func (ticked) EventType() string { return "Ticked" }

func batch(n int) []es.Event {
	events := make([]es.Event, n)
	for i := range events {
		events[i] = es.Event{Payload: ticked{N: i}}
	}
	return events
}

func TestAppend_AssignsVersionsAndIDs(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s := memory.NewStore(memory.WithClock(func() time.Time { return now }))
	keys := es.NewPartitionKeys("Clock", "")

	first, err := s.Append(ctx, keys, es.NoStream(), batch(2))
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(1), first[0].Version)
	assert.Equal(t, int64(2), first[1].Version)
	assert.Equal(t, keys, first[0].PartitionKeys)
	// a frozen clock may push later ids of the batch forward by a tick
	for _, ev := range first {
		ts, err := ev.SortableUniqueID.Time()
		require.NoError(t, err)
		assert.False(t, ts.Before(now))
		assert.Less(t, ts.Sub(now), time.Microsecond)
	}
	assert.True(t, first[1].SortableUniqueID.After(first[0].SortableUniqueID))

	second, err := s.Append(ctx, keys, es.Exact(2), batch(1))
	require.NoError(t, err)
	assert.Equal(t, int64(3), second[0].Version)
	assert.Equal(t, int64(3), s.StreamVersion(keys))
}

func TestAppend_ExpectedVersion(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	keys := es.NewPartitionKeys("Clock", "")

	_, err := s.Append(ctx, keys, es.Exact(1), batch(1))
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	_, err = s.Append(ctx, keys, es.Exact(0), batch(1))
	require.NoError(t, err)

	_, err = s.Append(ctx, keys, es.NoStream(), batch(1))
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	_, err = s.Append(ctx, keys, es.Exact(0), batch(1))
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	_, err = s.Append(ctx, keys, es.Any(), batch(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.StreamVersion(keys))
}

func TestAppend_Rejections(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	keys := es.NewPartitionKeys("Clock", "")

	_, err := s.Append(ctx, keys, es.Any(), nil)
	assert.ErrorIs(t, err, store.ErrNoEvents)

	id := sortableid.New(time.Now())
	_, err = s.Append(ctx, keys, es.Any(), []es.Event{{Payload: ticked{}, SortableUniqueID: id}})
	require.NoError(t, err)

	// the second event duplicates an existing id, so the first must not land either
	_, err = s.Append(ctx, keys, es.Any(), []es.Event{
		{Payload: ticked{N: 1}},
		{Payload: ticked{N: 2}, SortableUniqueID: id},
	})
	assert.ErrorIs(t, err, store.ErrDuplicateSortableID)
	assert.Equal(t, int64(1), s.StreamVersion(keys))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Append(canceled, keys, es.Any(), batch(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadStream_SortsByID(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	keys := es.NewPartitionKeys("Clock", "")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	early := sortableid.New(base)
	late := sortableid.New(base.Add(time.Minute))

	_, err := s.Append(ctx, keys, es.Any(), []es.Event{{Payload: ticked{N: 1}, SortableUniqueID: late}})
	require.NoError(t, err)
	_, err = s.Append(ctx, keys, es.Any(), []es.Event{{Payload: ticked{N: 2}, SortableUniqueID: early}})
	require.NoError(t, err)

	events, err := s.ReadStream(ctx, keys, "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, early, events[0].SortableUniqueID)
	assert.Equal(t, int64(2), events[0].Version)

	tail, err := s.ReadStream(ctx, keys, early)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, late, tail[0].SortableUniqueID)

	missing, err := s.ReadStream(ctx, es.NewPartitionKeys("Clock", ""), "")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestReadEvents_AcrossPartitions(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := es.NewPartitionKeys("Clock", "")
	b := es.NewPartitionKeys("Clock", "tenant-b")

	ids := []sortableid.ID{
		sortableid.New(base),
		sortableid.New(base.Add(1 * time.Second)),
		sortableid.New(base.Add(2 * time.Second)),
		sortableid.New(base.Add(3 * time.Second)),
	}
	_, err := s.Append(ctx, a, es.Any(), []es.Event{{Payload: ticked{}, SortableUniqueID: ids[0]}, {Payload: ticked{}, SortableUniqueID: ids[2]}})
	require.NoError(t, err)
	_, err = s.Append(ctx, b, es.Any(), []es.Event{{Payload: ticked{}, SortableUniqueID: ids[1]}, {Payload: ticked{}, SortableUniqueID: ids[3]}})
	require.NoError(t, err)

	all, err := s.ReadEvents(ctx, "", "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := range all {
		assert.Equal(t, ids[i], all[i].SortableUniqueID)
	}

	window, err := s.ReadEvents(ctx, ids[0], ids[3], 10)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, b, window[0].PartitionKeys)
	assert.Equal(t, a, window[1].PartitionKeys)

	limited, err := s.ReadEvents(ctx, "", "", 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)
}

func TestCheckpoints(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	cp, err := s.GetCheckpoint(ctx, "report")
	require.NoError(t, err)
	assert.True(t, cp.IsZero())

	id := sortableid.New(time.Now())
	require.NoError(t, s.UpdateCheckpoint(ctx, "report", id))
	cp, err = s.GetCheckpoint(ctx, "report")
	require.NoError(t, err)
	assert.Equal(t, id, cp)
}

func TestAppend_ConcurrentSameVersion(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	keys := es.NewPartitionKeys("Clock", "")

	const writers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Append(ctx, keys, es.Exact(0), batch(1))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if assert.ErrorIs(t, err, store.ErrVersionConflict) {
				conflicts++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, writers-1, conflicts)
	assert.Equal(t, int64(1), s.StreamVersion(keys))
}

func TestAppend_PartitionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	var wg sync.WaitGroup
	keys := make([]es.PartitionKeys, 8)
	for i := range keys {
		keys[i] = es.NewPartitionKeys("Clock", "")
	}
	for _, k := range keys {
		wg.Add(1)
		go func(k es.PartitionKeys) {
			defer wg.Done()
			for v := int64(0); v < 20; v++ {
				_, err := s.Append(ctx, k, es.Exact(v), batch(1))
				assert.NoError(t, err)
			}
		}(k)
	}
	wg.Wait()

	for _, k := range keys {
		assert.Equal(t, int64(20), s.StreamVersion(k))
	}
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		return memory.NewStore()
	})
}
