// Package es provides the core event sourcing types of pupkernel.
//
// # Overview
//
// This package defines the values the rest of the kernel passes around:
//   - PartitionKeys: identifies one independent event stream
//   - Event: an immutable, versioned, sortable-id stamped payload
//   - Aggregate: the state of one partition, derived by folding its events
//   - Projector: the pure transition function used for the fold
//   - ExpectedVersion: the optimistic concurrency guard used on append
//   - Logger: optional observability hook shared by every component
//
// # Design Philosophy
//
// Partition isolation: every ordering guarantee is scoped to one
// PartitionKeys value. Versions, sortable ids and projection order agree
// within a partition; nothing is promised across partitions.
//
// Derived state: an Aggregate is never stored directly. It is always
// reconstructable as a fold of EmptyPayload over the partition's events
// ordered by sortable id, so replaying twice yields identical state.
//
// Open payloads: event and aggregate payloads are plain value structs that
// name themselves. Projectors dispatch with type switches and fall through to
// the unchanged state for any pair they do not recognize.
//
// Pluggable storage: persistence lives behind the interfaces in es/store.
// The in-memory, SQLite, PostgreSQL and MySQL adapters all satisfy them, so
// projection and command logic never depend on a concrete backend.
//
// # Quick Start
//
//	s := memory.NewStore()
//	exec := command.NewExecutor(s)
//
//	resp, err := exec.Execute(ctx, branch.CreateBranch{Name: "main", Country: "Japan"})
//	if err != nil {
//	    return err
//	}
//
//	agg, err := exec.Load(ctx, resp.PartitionKeys, branch.Projector{})
//
// # Optimistic Concurrency
//
// The command executor loads a partition at head version N and appends its
// batch with Exact(N). If another writer advanced the partition first, the
// append fails with store.ErrVersionConflict and nothing is persisted. The
// caller retries the whole load, handle, append cycle.
package es
