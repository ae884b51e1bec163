package es

import "fmt"

// ExpectedVersion declares what a writer believes the partition's head version
// to be when it appends. It is the optimistic concurrency guard: a command that
// loaded version N appends with Exact(N), so a concurrent writer that advanced
// the partition in the meantime makes the append fail instead of interleaving.
type ExpectedVersion struct {
	value int64
}

const (
	// expectedVersionAny indicates no version check should be performed
	expectedVersionAny = -1
	// expectedVersionNoStream indicates the partition must be empty
	expectedVersionNoStream = -2
)

// Any returns an ExpectedVersion that skips version validation.
// Appends made with Any are not safe to retry after an ambiguous failure.
func Any() ExpectedVersion {
	return ExpectedVersion{value: expectedVersionAny}
}

// NoStream returns an ExpectedVersion that requires the partition to have no events.
func NoStream() ExpectedVersion {
	return ExpectedVersion{value: expectedVersionNoStream}
}

// Exact returns an ExpectedVersion that requires the partition head to be at
// exactly the given version. Exact(0) means the partition has no events yet,
// which is what a command sees when it loads an absent stream.
func Exact(version int64) ExpectedVersion {
	if version < 0 {
		panic(fmt.Sprintf("exact version must be non-negative, got %d", version))
	}
	return ExpectedVersion{value: version}
}

// IsAny returns true if this is an "Any" expected version (no version check).
func (ev ExpectedVersion) IsAny() bool {
	return ev.value == expectedVersionAny
}

// IsNoStream returns true if this is a "NoStream" expected version.
func (ev ExpectedVersion) IsNoStream() bool {
	return ev.value == expectedVersionNoStream
}

// IsExact returns true if this is an "Exact" expected version.
func (ev ExpectedVersion) IsExact() bool {
	return ev.value >= 0
}

// Value returns the exact version number if this is an Exact expected version.
// Returns 0 for Any and NoStream.
func (ev ExpectedVersion) Value() int64 {
	if ev.value >= 0 {
		return ev.value
	}
	return 0
}

// Matches reports whether a partition whose head is at version head satisfies
// the expectation. A head of 0 means the partition has no events.
func (ev ExpectedVersion) Matches(head int64) bool {
	switch {
	case ev.IsAny():
		return true
	case ev.IsNoStream():
		return head == 0
	default:
		return head == ev.value
	}
}

// String returns a string representation of the ExpectedVersion.
func (ev ExpectedVersion) String() string {
	if ev.IsAny() {
		return "Any"
	}
	if ev.IsNoStream() {
		return "NoStream"
	}
	return fmt.Sprintf("Exact(%d)", ev.value)
}
