package es

// EventPayload is the domain data carried by an event.
//
// The set of payload types is open: any value type naming itself through
// EventType can be emitted without changing the kernel. Payloads should be
// plain structs passed by value so that copying an event duplicates it.
type EventPayload interface {
	EventType() string
}

// AggregatePayload is one state variant of an aggregate.
type AggregatePayload interface {
	AggregateType() string
}

// EmptyPayloadType is the AggregateType of EmptyPayload.
const EmptyPayloadType = "Empty"

// EmptyPayload is the zero state of every aggregate. Every projector must
// accept it as input.
type EmptyPayload struct{}

// AggregateType implements AggregatePayload.
func (EmptyPayload) AggregateType() string { return EmptyPayloadType }

// IsEmptyPayload reports whether p is the zero state (or nil).
func IsEmptyPayload(p AggregatePayload) bool {
	if p == nil {
		return true
	}
	_, ok := p.(EmptyPayload)
	return ok
}
