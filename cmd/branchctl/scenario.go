package main

import (
	"context"
	"fmt"
	"io"

	"github.com/getpup/pupkernel/es"
	"github.com/getpup/pupkernel/es/command"
	"github.com/getpup/pupkernel/es/eventtype"
	"github.com/getpup/pupkernel/es/store"
	"github.com/getpup/pupkernel/examples/domain/branch"
)

// scenario holds the inputs of one branch lifecycle run.
type scenario struct {
	Name     string
	Rename   string
	Country  string
	Relocate string
}

type responseView struct {
	State   es.AggregatePayload
	Range   string
	Version int64
	NoOp    bool
}

func view(r command.Response) responseView {
	return responseView{
		State:   r.Aggregate.Payload,
		Range:   store.VersionRange(r.Events),
		Version: r.Version,
		NoOp:    r.NoOp(),
	}
}

// run creates a branch, renames it, moves it and repeats the move, which the
// domain treats as a no-op. Each command retries on version conflicts.
func run(ctx context.Context, cfg Config, sc scenario, logger es.Logger, out io.Writer) error {
	registry := eventtype.NewRegistry()
	if err := branch.Register(registry); err != nil {
		return err
	}

	b, err := openBackend(ctx, cfg, registry, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	opts := []command.ExecutorOption{
		command.WithLogger(logger),
		command.WithRegistry(registry),
	}
	if b.loader != nil {
		opts = append(opts, command.WithLoader(b.loader))
	}
	executor := command.NewExecutor(b.store, opts...)

	retry := command.DefaultRetryConfig()
	retry.MaxTries = cfg.Retries
	execute := func(step string, cmd command.Command) (command.Response, error) {
		resp, err := command.RetryOnConflict(ctx, retry, func(ctx context.Context) (command.Response, error) {
			return executor.Execute(ctx, cmd)
		})
		if err != nil {
			return command.Response{}, fmt.Errorf("%s: %w", step, err)
		}
		printResponse(out, step, view(resp))
		return resp, nil
	}

	created, err := execute("create", branch.CreateBranch{Name: sc.Name, Country: sc.Country})
	if err != nil {
		return err
	}
	keys := created.PartitionKeys
	fmt.Fprintf(out, "%-10s %s\n", "partition", keys)

	steps := []struct {
		name string
		cmd  command.Command
	}{
		{"rename", branch.ChangeBranchName{Keys: keys, Name: sc.Rename}},
		{"relocate", branch.ChangeBranchCountry{Keys: keys, Country: sc.Relocate}},
		{"repeat", branch.ChangeBranchCountry{Keys: keys, Country: sc.Relocate}},
	}
	for _, step := range steps {
		if _, err := execute(step.name, step.cmd); err != nil {
			return err
		}
	}

	final, err := executor.Load(ctx, keys, branch.Projector{})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%-10s version=%d state=%+v\n", "final", final.Version, final.Payload)
	return nil
}
