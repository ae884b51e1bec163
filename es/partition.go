package es

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	// DefaultGroup is the group used when none is given.
	DefaultGroup = "default"

	// DefaultRootPartitionKey is the root partition used when none is given.
	DefaultRootPartitionKey = "default"
)

// ErrInvalidPartitionKeys indicates partition keys with a missing field.
var ErrInvalidPartitionKeys = errors.New("invalid partition keys")

// PartitionKeys identifies one independent event stream.
// Equality is structural, so the struct can be compared with == and used as
// a map key. Two streams with different keys never interleave.
type PartitionKeys struct {
	AggregateID      uuid.UUID
	Group            string
	RootPartitionKey string
}

// NewPartitionKeys returns keys for a new stream with a fresh time-ordered
// aggregate id. Empty group or root fall back to the defaults.
func NewPartitionKeys(group, rootPartitionKey string) PartitionKeys {
	return ExistingPartitionKeys(uuid.Must(uuid.NewV7()), group, rootPartitionKey)
}

// ExistingPartitionKeys returns keys for a stream whose aggregate id is known.
// Empty group or root fall back to the defaults.
func ExistingPartitionKeys(aggregateID uuid.UUID, group, rootPartitionKey string) PartitionKeys {
	if group == "" {
		group = DefaultGroup
	}
	if rootPartitionKey == "" {
		rootPartitionKey = DefaultRootPartitionKey
	}
	return PartitionKeys{
		AggregateID:      aggregateID,
		Group:            group,
		RootPartitionKey: rootPartitionKey,
	}
}

// PartitionKeysFor returns keys for a new stream grouped under the projector's name.
func PartitionKeysFor(p Projector) PartitionKeys {
	return NewPartitionKeys(p.Name(), DefaultRootPartitionKey)
}

// ExistingPartitionKeysFor returns keys for an existing stream grouped under
// the projector's name.
func ExistingPartitionKeysFor(p Projector, aggregateID uuid.UUID) PartitionKeys {
	return ExistingPartitionKeys(aggregateID, p.Name(), DefaultRootPartitionKey)
}

// IsZero reports whether k is the zero value.
func (k PartitionKeys) IsZero() bool {
	return k == PartitionKeys{}
}

// Validate reports whether every field is set.
func (k PartitionKeys) Validate() error {
	switch {
	case k.AggregateID == uuid.Nil:
		return fmt.Errorf("%w: aggregate id is required", ErrInvalidPartitionKeys)
	case k.Group == "":
		return fmt.Errorf("%w: group is required", ErrInvalidPartitionKeys)
	case k.RootPartitionKey == "":
		return fmt.Errorf("%w: root partition key is required", ErrInvalidPartitionKeys)
	}
	return nil
}

// String renders the keys as root/group/aggregate_id for logs and cache keys.
func (k PartitionKeys) String() string {
	return k.RootPartitionKey + "/" + k.Group + "/" + k.AggregateID.String()
}
