package es

// Projector is the pure transition function of one aggregate type.
//
// Project must be total and deterministic: for any (state, event) pair it
// does not explicitly handle it returns state unchanged. It is invoked exactly
// once per event, in sortable id order, with the output of each call threaded
// into the next.
type Projector interface {
	// Name identifies the aggregate type. It is the default partition group
	// for streams created through PartitionKeysFor.
	Name() string

	// Version labels the projector's logic. Caches of projected state are
	// keyed by it, so changing the fold means bumping the version.
	Version() string

	// Project returns the state after applying ev to state.
	Project(state AggregatePayload, ev Event) AggregatePayload
}

// ProjectorFunc adapts a function to a Projector with a fixed name and version.
type ProjectorFunc struct {
	ProjectorName    string
	ProjectorVersion string
	Fn               func(state AggregatePayload, ev Event) AggregatePayload
}

// Name implements Projector.
func (p ProjectorFunc) Name() string { return p.ProjectorName }

// Version implements Projector.
func (p ProjectorFunc) Version() string {
	if p.ProjectorVersion == "" {
		return "initial"
	}
	return p.ProjectorVersion
}

// Project implements Projector.
//
//nolint:gocritic // hugeParam: events are passed by value to keep them immutable
func (p ProjectorFunc) Project(state AggregatePayload, ev Event) AggregatePayload {
	if p.Fn == nil {
		return state
	}
	return p.Fn(state, ev)
}
