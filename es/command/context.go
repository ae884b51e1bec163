package command

import (
	"time"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/sortableid"
)

// Context is the command handler's view of the aggregate being changed.
// It accumulates the events the handler produces and re-projects after each
// one, so a handler emitting several events always sees the state its
// previous events produced. A Context is not safe for concurrent use.
type Context struct {
	aggregate     es.Aggregate
	projector     es.Projector
	streamVersion int64
	events        []es.Event
	now           func() time.Time
}

func newContext(loaded es.Aggregate, streamVersion int64, p es.Projector, now func() time.Time) *Context {
	return &Context{
		aggregate:     loaded,
		projector:     p,
		streamVersion: streamVersion,
		now:           now,
	}
}

// Aggregate returns the current state, including events appended so far.
func (c *Context) Aggregate() es.Aggregate {
	return c.aggregate
}

// Events returns a copy of the events appended so far.
func (c *Context) Events() []es.Event {
	out := make([]es.Event, len(c.events))
	copy(out, c.events)
	return out
}

// PartitionKeys returns the keys of the partition being changed.
func (c *Context) PartitionKeys() es.PartitionKeys {
	return c.aggregate.PartitionKeys
}

// Version returns the stream version the pending events will follow,
// plus the number of events appended so far.
func (c *Context) Version() int64 {
	return c.streamVersion + int64(len(c.events))
}

// Append records payload as the next event and returns the re-projected aggregate.
func (c *Context) Append(payload es.EventPayload) es.Aggregate {
	ev := es.Event{
		Payload:          payload,
		PartitionKeys:    c.aggregate.PartitionKeys,
		SortableUniqueID: c.nextID(),
		Version:          c.Version() + 1,
	}
	c.events = append(c.events, ev)
	c.aggregate = c.aggregate.Project(ev, c.projector)
	return c.aggregate
}

// nextID returns an id after the aggregate's last folded id. The loaded
// aggregate is folded in id order, so that is the stream's highest id, and
// each Append moves it to the event just stamped. New events therefore fold
// after everything already stored even when this host's clock lags.
func (c *Context) nextID() sortableid.ID {
	return sortableid.Next(c.aggregate.LastSortableUniqueID, c.now())
}
