// Package pupkernel is the entry point of the pupkernel event sourcing kernel.
//
// The functionality lives in the es package and its subpackages:
//
//	es/sortableid         - Time-ordered 30-digit event ids
//	es/eventtype          - Payload registry for persistence
//	es/store              - Event store contracts and the conformance suite
//	es/command            - Command executor with optimistic concurrency
//	es/projection         - Checkpointed projection processing
//	es/snapshot           - Cached aggregate loading
//	es/adapters/memory    - In-process store
//	es/adapters/sqlite    - SQLite store
//	es/adapters/postgres  - PostgreSQL store
//	es/adapters/mysql     - MySQL store
//	es/adapters/redis     - Redis snapshot cache
//
// Quick Start:
//
//  1. Register payloads and create a store:
//     registry := eventtype.NewRegistry()
//     store := memory.NewStore()
//
//  2. Execute commands:
//     executor := command.NewExecutor(store, command.WithRegistry(registry))
//     resp, err := executor.Execute(ctx, cmd)
//
//  3. Process events:
//     processor := projection.NewProcessor(store, store, projection.DefaultProcessorConfig())
//     processor.Run(ctx, myProjection)
//
// See the examples directory for complete working examples.
package pupkernel

// Version returns the current version of the library.
func Version() string {
	return "0.1.0-dev"
}
