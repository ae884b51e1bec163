// Package runner provides optional tooling for running multiple projections and scaling them safely.
// Nothing is scheduled automatically: the caller decides which projections and
// partitions run in a process.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/getpup/pupkernel/es/projection"
	"github.com/getpup/pupkernel/es/store"
)

var (
	// ErrNoProjections indicates that no projections were provided to run.
	ErrNoProjections = errors.New("no projections provided")

	// ErrInvalidPartitionConfig indicates invalid partition configuration.
	ErrInvalidPartitionConfig = errors.New("invalid partition configuration")
)

// ProjectionConfig pairs a projection with the configuration of its processor.
type ProjectionConfig struct {
	Projection      projection.Projection
	ProcessorConfig projection.ProcessorConfig
}

// Runner orchestrates multiple projections concurrently over one store.
//
// Example:
//
//	r := runner.New(store, store)
//	err := r.Run(ctx, []runner.ProjectionConfig{
//	    {Projection: &MyProjection{}, ProcessorConfig: projection.DefaultProcessorConfig()},
//	})
type Runner struct {
	eventReader     store.EventReader
	checkpointStore store.CheckpointStore
}

// New creates a new projection runner.
func New(eventReader store.EventReader, checkpointStore store.CheckpointStore) *Runner {
	return &Runner{
		eventReader:     eventReader,
		checkpointStore: checkpointStore,
	}
}

func validate(configs []ProjectionConfig) error {
	if len(configs) == 0 {
		return ErrNoProjections
	}
	for i := range configs {
		c := &configs[i]
		if c.Projection == nil {
			return fmt.Errorf("projection at index %d is nil", i)
		}
		total := c.ProcessorConfig.TotalPartitions
		key := c.ProcessorConfig.PartitionKey
		if total < 1 {
			return fmt.Errorf("%w: projection %q has %d total partitions", ErrInvalidPartitionConfig, c.Projection.Name(), total)
		}
		if key < 0 || key >= total {
			return fmt.Errorf("%w: projection %q partition key %d out of range [0, %d)", ErrInvalidPartitionConfig, c.Projection.Name(), key, total)
		}
	}
	return nil
}

// Run runs every projection in its own goroutine until the context is
// canceled or one of them fails. The first failure cancels the others and is
// returned. Cancellation of ctx is reported as ctx.Err().
func (r *Runner) Run(ctx context.Context, configs []ProjectionConfig) error {
	if err := validate(configs); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range configs {
		c := configs[i]
		processor := projection.NewProcessor(r.eventReader, r.checkpointStore, c.ProcessorConfig)
		g.Go(func() error {
			err := processor.Run(gctx, c.Projection)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("projection %q failed: %w", c.Projection.Name(), err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// partitioned names each partition's checkpoint after its key, so the
// instances of one projection advance independently.
type partitioned struct {
	projection.Projection
	key int
}

func (p partitioned) Name() string {
	return p.Projection.Name() + "#" + strconv.Itoa(p.key)
}

// AggregateGroups keeps the scope of a wrapped ScopedProjection.
func (p partitioned) AggregateGroups() []string {
	if scoped, ok := p.Projection.(projection.ScopedProjection); ok {
		return scoped.AggregateGroups()
	}
	return nil
}

// RunProjectionPartitions runs totalPartitions instances of proj in this
// process, each handling the aggregates that hash to its key.
func RunProjectionPartitions(
	ctx context.Context,
	eventReader store.EventReader,
	checkpointStore store.CheckpointStore,
	proj projection.Projection,
	totalPartitions int,
) error {
	if totalPartitions < 1 {
		return fmt.Errorf("%w: total partitions must be positive, got %d", ErrInvalidPartitionConfig, totalPartitions)
	}

	configs := make([]ProjectionConfig, totalPartitions)
	for key := 0; key < totalPartitions; key++ {
		config := projection.DefaultProcessorConfig()
		config.PartitionKey = key
		config.TotalPartitions = totalPartitions

		var p projection.Projection = proj
		if totalPartitions > 1 {
			p = partitioned{Projection: proj, key: key}
		}
		configs[key] = ProjectionConfig{Projection: p, ProcessorConfig: config}
	}
	return New(eventReader, checkpointStore).Run(ctx, configs)
}

// RunMultipleProjections is a convenience wrapper around Runner.Run.
func RunMultipleProjections(
	ctx context.Context,
	eventReader store.EventReader,
	checkpointStore store.CheckpointStore,
	configs []ProjectionConfig,
) error {
	return New(eventReader, checkpointStore).Run(ctx, configs)
}
