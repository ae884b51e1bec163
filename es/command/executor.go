// Package command runs commands against event-sourced aggregates.
//
// Every execution follows the same path: load the target partition, let the
// handler decide on new events, then append them with the loaded stream
// version as the expected version. Two commands that loaded the same version
// cannot both commit; the loser gets store.ErrVersionConflict and nothing it
// produced is persisted.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/eventtype"
	"github.com/getpup/pupkernel/es/store"
)

// Response describes a completed command.
type Response struct {
	// PartitionKeys identifies the partition the command targeted
	PartitionKeys es.PartitionKeys

	// Events are the events persisted by the command, empty for a no-op
	Events []es.Event

	// Version is the stream version after the command
	Version int64

	// Aggregate is the state after the command's events
	Aggregate es.Aggregate
}

// NoOp reports whether the command produced no events.
func (r Response) NoOp() bool {
	return len(r.Events) == 0
}

// ExecutorConfig contains configuration for an Executor.
type ExecutorConfig struct {
	// Logger is an optional logger for observability.
	// If nil, logging is disabled (zero overhead).
	Logger es.Logger

	// Now is the clock used to stamp new events.
	Now func() time.Time

	// Loader materializes aggregates. Defaults to a full stream replay.
	Loader store.AggregateLoader

	// Registry, when set, rejects payloads whose type was not registered.
	Registry *eventtype.Registry
}

// ExecutorOption is a functional option for configuring an Executor.
type ExecutorOption func(*ExecutorConfig)

// WithLogger sets a logger for the executor.
func WithLogger(logger es.Logger) ExecutorOption {
	return func(c *ExecutorConfig) {
		c.Logger = logger
	}
}

// WithClock sets the clock used to stamp event ids.
func WithClock(now func() time.Time) ExecutorOption {
	return func(c *ExecutorConfig) {
		c.Now = now
	}
}

// WithLoader replaces the aggregate loader, e.g. with a snapshot.Loader.
func WithLoader(loader store.AggregateLoader) ExecutorOption {
	return func(c *ExecutorConfig) {
		c.Loader = loader
	}
}

// WithRegistry makes the executor reject unregistered event payloads.
func WithRegistry(r *eventtype.Registry) ExecutorOption {
	return func(c *ExecutorConfig) {
		c.Registry = r
	}
}

// Executor runs commands against one store.
type Executor struct {
	store  store.EventStore
	config ExecutorConfig
}

// NewExecutor creates an executor appending to s. Unless WithLoader is given,
// aggregates are loaded by replaying s.
func NewExecutor(s store.Store, opts ...ExecutorOption) *Executor {
	config := ExecutorConfig{Now: time.Now}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Loader == nil {
		config.Loader = store.StreamLoader{Reader: s}
	}
	return &Executor{store: s, config: config}
}

// Load returns the current aggregate of a partition without changing it.
//
//nolint:gocritic // hugeParam: partition keys are compared by value
func (e *Executor) Load(ctx context.Context, keys es.PartitionKeys, p es.Projector) (es.Aggregate, error) {
	loaded, err := e.config.Loader.LoadAggregate(ctx, keys, p)
	if err != nil {
		return es.Aggregate{}, err
	}
	return loaded.Aggregate, nil
}

// Execute runs a self-describing command.
func (e *Executor) Execute(ctx context.Context, cmd Command) (Response, error) {
	return Execute[Command](ctx, e, cmd, cmd.Projector(), selfHandler{})
}

// Execute runs cmd through handler against the partition the handler resolves.
func Execute[C any](ctx context.Context, e *Executor, cmd C, p es.Projector, h Handler[C]) (Response, error) {
	keys := h.PartitionKeys(cmd)
	if err := keys.Validate(); err != nil {
		return Response{}, err
	}

	loaded, err := e.config.Loader.LoadAggregate(ctx, keys, p)
	if err != nil {
		return Response{}, fmt.Errorf("load %s: %w", keys, err)
	}

	if r, ok := any(cmd).(AggregateRestricted); ok {
		if want := r.RequiredAggregateType(); want != "" && want != loaded.Aggregate.PayloadType() {
			return Response{}, fmt.Errorf("%w: %T requires %s, aggregate is %s",
				ErrAggregateTypeRestriction, cmd, want, loaded.Aggregate.PayloadType())
		}
	}

	c := newContext(loaded.Aggregate, loaded.StreamVersion, p, e.config.Now)
	payload, err := h.Handle(cmd, c)
	if err != nil {
		return Response{}, err
	}
	if payload != nil {
		c.Append(payload)
	}

	pending := c.Events()
	if len(pending) == 0 {
		if e.config.Logger != nil {
			e.config.Logger.Debug(ctx, "command produced no events",
				"partition", keys.String(),
				"version", loaded.StreamVersion)
		}
		return Response{
			PartitionKeys: keys,
			Version:       loaded.StreamVersion,
			Aggregate:     c.Aggregate(),
		}, nil
	}

	if err := e.validate(pending); err != nil {
		return Response{}, err
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	expected := es.Exact(loaded.StreamVersion)
	persisted, err := e.store.Append(ctx, keys, expected, pending)
	if err != nil {
		if e.config.Logger != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				e.config.Logger.Error(ctx, "command lost optimistic concurrency race",
					"partition", keys.String(),
					"expected_version", expected.String())
			} else {
				e.config.Logger.Error(ctx, "command append failed",
					"partition", keys.String(),
					"error", err)
			}
		}
		return Response{}, err
	}

	version := persisted[len(persisted)-1].Version
	if e.config.Logger != nil {
		e.config.Logger.Info(ctx, "command executed",
			"partition", keys.String(),
			"event_count", len(persisted),
			"expected_version", expected.String(),
			"version_range", store.VersionRange(persisted))
	}

	return Response{
		PartitionKeys: keys,
		Events:        persisted,
		Version:       version,
		Aggregate:     c.Aggregate(),
	}, nil
}

func (e *Executor) validate(events []es.Event) error {
	if e.config.Registry == nil {
		return nil
	}
	for i := range events {
		if !e.config.Registry.HasEvent(events[i].Payload) {
			return fmt.Errorf("%w: event %T", eventtype.ErrUnknownType, events[i].Payload)
		}
	}
	return nil
}
