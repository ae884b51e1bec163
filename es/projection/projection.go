// Package projection feeds stored events to read-model handlers.
//
// A Processor reads events across every partition in sortable id order,
// starting after the projection's checkpoint and stopping before
// sortableid.Safe(now). Events newer than the safe boundary may still be
// joined by writes from hosts whose clocks lag, so they are left for a later
// batch. The checkpoint advances only after every event of the batch has been
// handled, which makes delivery at-least-once.
package projection

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/sortableid"
	"github.com/getpup/pupkernel/es/store"
)

var (
	// ErrProjectionStopped indicates the projection was stopped due to an error.
	ErrProjectionStopped = errors.New("projection stopped")
)

// Projection defines the interface for event projection handlers.
type Projection interface {
	// Name returns the unique name of this projection.
	// This name is used for checkpoint tracking.
	Name() string

	// Handle processes a single event. The projection manages its own
	// persistence. Return an error to stop processing; the checkpoint is not
	// advanced past the batch containing the failed event.
	//
	//nolint:gocritic // hugeParam: events are passed by value to keep them immutable
	Handle(ctx context.Context, event es.Event) error
}

// ScopedProjection is a Projection that only receives events of some
// aggregate groups. An empty list means every group.
type ScopedProjection interface {
	Projection

	// AggregateGroups returns the groups this projection handles.
	AggregateGroups() []string
}

// PartitionStrategy defines how events are partitioned across projection instances.
type PartitionStrategy interface {
	// ShouldProcess returns true if this projection instance should process the given event.
	// aggregateID is the aggregate ID of the event.
	// partitionKey identifies this projection instance (e.g., 0 for the first of 4 workers).
	// totalPartitions is the total number of projection instances.
	ShouldProcess(aggregateID string, partitionKey int, totalPartitions int) bool
}

// HashPartitionStrategy implements deterministic hash-based partitioning.
// Events are distributed across partitions based on a hash of the aggregate ID,
// so all events of one aggregate go to the same instance and keep their order.
type HashPartitionStrategy struct{}

// ShouldProcess implements PartitionStrategy using FNV-1a hashing.
func (HashPartitionStrategy) ShouldProcess(aggregateID string, partitionKey int, totalPartitions int) bool {
	if totalPartitions <= 1 {
		return true
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(aggregateID))
	partition := int(h.Sum32() % uint32(totalPartitions))
	return partition == partitionKey
}

// ProcessorConfig configures a projection processor.
type ProcessorConfig struct {
	// Logger is an optional logger for observability.
	// If nil, logging is disabled (zero overhead).
	Logger es.Logger

	// PartitionStrategy determines which events this processor handles
	PartitionStrategy PartitionStrategy

	// Now is the clock used for the safe read boundary.
	Now func() time.Time

	// BatchSize is the number of events to read per batch
	BatchSize int

	// PartitionKey identifies this processor instance (0-indexed)
	PartitionKey int

	// TotalPartitions is the total number of processor instances
	TotalPartitions int

	// PollInterval is how long Run waits after an empty batch.
	PollInterval time.Duration
}

// DefaultProcessorConfig returns the default configuration.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PartitionStrategy: HashPartitionStrategy{},
		Now:               time.Now,
		BatchSize:         100,
		PartitionKey:      0,
		TotalPartitions:   1,
		PollInterval:      100 * time.Millisecond,
	}
}

// ProcessorRunner is what a runner needs from a processor.
type ProcessorRunner interface {
	Run(ctx context.Context, projection Projection) error
}

// Processor processes events for projections.
type Processor struct {
	reader      store.EventReader
	checkpoints store.CheckpointStore
	config      ProcessorConfig
}

var _ ProcessorRunner = (*Processor)(nil)

// NewProcessor creates a new projection processor. Zero-valued fields of
// config fall back to DefaultProcessorConfig.
//
//nolint:gocritic // hugeParam: config is copied once at construction
func NewProcessor(reader store.EventReader, checkpoints store.CheckpointStore, config ProcessorConfig) *Processor {
	defaults := DefaultProcessorConfig()
	if config.PartitionStrategy == nil {
		config.PartitionStrategy = defaults.PartitionStrategy
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.TotalPartitions <= 0 {
		config.TotalPartitions = defaults.TotalPartitions
	}
	return &Processor{
		reader:      reader,
		checkpoints: checkpoints,
		config:      config,
	}
}

// Run processes events for the given projection until the context is canceled.
// Returns ErrProjectionStopped if the projection handler or the store fails.
func (p *Processor) Run(ctx context.Context, projection Projection) error {
	if p.config.Logger != nil {
		p.config.Logger.Info(ctx, "projection processor starting",
			"projection", projection.Name(),
			"partition_key", p.config.PartitionKey,
			"total_partitions", p.config.TotalPartitions,
			"batch_size", p.config.BatchSize)
	}

	for {
		n, err := p.RunOnce(ctx, projection)
		if err != nil {
			if ctx.Err() != nil {
				return p.stopped(ctx, projection)
			}
			if p.config.Logger != nil {
				p.config.Logger.Error(ctx, "projection processor error",
					"projection", projection.Name(),
					"error", err)
			}
			return fmt.Errorf("%w: %w", ErrProjectionStopped, err)
		}
		if n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return p.stopped(ctx, projection)
		case <-time.After(p.config.PollInterval):
		}
	}
}

func (p *Processor) stopped(ctx context.Context, projection Projection) error {
	if p.config.Logger != nil {
		p.config.Logger.Info(ctx, "projection processor stopped",
			"projection", projection.Name(),
			"reason", ctx.Err())
	}
	return ctx.Err()
}

// RunOnce processes a single batch and returns how many events it read,
// including events filtered out for this instance. Zero means the projection
// has caught up with the safe boundary.
func (p *Processor) RunOnce(ctx context.Context, projection Projection) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	checkpoint, err := p.checkpoints.GetCheckpoint(ctx, projection.Name())
	if err != nil {
		return 0, fmt.Errorf("get checkpoint: %w", err)
	}

	before := sortableid.Safe(p.config.Now())
	events, err := p.reader.ReadEvents(ctx, checkpoint, before, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("read events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	if p.config.Logger != nil {
		p.config.Logger.Debug(ctx, "processing batch",
			"projection", projection.Name(),
			"checkpoint", checkpoint.String(),
			"count", len(events))
	}

	groups := groupFilter(projection)
	var processed, skipped int
	for i := range events {
		event := events[i]
		if !p.shouldProcess(event, groups) {
			skipped++
			continue
		}

		if err := projection.Handle(ctx, event); err != nil {
			if p.config.Logger != nil {
				p.config.Logger.Error(ctx, "projection handler error",
					"projection", projection.Name(),
					"partition", event.PartitionKeys.String(),
					"sortable_unique_id", event.SortableUniqueID.String(),
					"event_type", event.Payload.EventType(),
					"error", err)
			}
			return 0, fmt.Errorf("projection handler error at %s: %w", event.SortableUniqueID, err)
		}
		processed++
	}

	last := events[len(events)-1].SortableUniqueID
	if err := p.checkpoints.UpdateCheckpoint(ctx, projection.Name(), last); err != nil {
		return 0, fmt.Errorf("update checkpoint: %w", err)
	}

	if p.config.Logger != nil {
		p.config.Logger.Debug(ctx, "batch processed",
			"projection", projection.Name(),
			"processed", processed,
			"skipped", skipped,
			"checkpoint", last.String())
	}
	return len(events), nil
}

// groupFilter returns nil when the projection takes every group.
func groupFilter(projection Projection) map[string]bool {
	scoped, ok := projection.(ScopedProjection)
	if !ok {
		return nil
	}
	groups := scoped.AggregateGroups()
	if len(groups) == 0 {
		return nil
	}
	filter := make(map[string]bool, len(groups))
	for _, g := range groups {
		filter[g] = true
	}
	return filter
}

//nolint:gocritic // hugeParam: events are passed by value to keep them immutable
func (p *Processor) shouldProcess(event es.Event, groups map[string]bool) bool {
	if !p.config.PartitionStrategy.ShouldProcess(
		event.PartitionKeys.AggregateID.String(),
		p.config.PartitionKey,
		p.config.TotalPartitions,
	) {
		return false
	}
	return groups == nil || groups[event.PartitionKeys.Group]
}
