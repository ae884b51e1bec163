package es

import "github.com/getpup/pupkernel/es/sortableid"

// Event is an immutable, persisted (or about to be persisted) domain event.
// Once appended it is never mutated or deleted.
type Event struct {
	// Payload is the domain data of the event
	Payload EventPayload

	// PartitionKeys identifies the stream the event belongs to
	PartitionKeys PartitionKeys

	// SortableUniqueID orders the event within its partition
	SortableUniqueID sortableid.ID

	// Version is the 1-based position of the event in its partition.
	// Assigned by the store on append.
	Version int64
}

// EventType returns the payload's type name, or "" for a nil payload.
func (e Event) EventType() string {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.EventType()
}
