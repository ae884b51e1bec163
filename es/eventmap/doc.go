// Package eventmap generates payload registration code for event sourcing
// domain packages.
//
// The generator scans one package directory for named types that declare an
// EventType() string or AggregateType() string method and writes a
// RegisterEventTypes function adding every one of them to an
// eventtype.Registry, together with a test that exercises it.
//
// The generated code is explicit, readable, and does not use runtime
// reflection beyond what the registry itself needs.
package eventmap
