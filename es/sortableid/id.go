// Package sortableid implements the 30-digit time-ordered identifier used to
// order events inside a partition.
//
// # Layout
//
// An ID is 30 ASCII digits: 19 digits of zero-padded ticks followed by 11
// digits of zero-padded entropy. A tick is 100 nanoseconds measured from
// 0001-01-01T00:00:00Z, the same epoch used by .NET DateTime.Ticks, so ids
// produced by other systems sharing that epoch sort together with ours.
//
// Because both fields are fixed width, plain string comparison matches
// chronological order. Two ids generated within the same tick fall back to
// their entropy digits, which is an arbitrary (non-causal) tie-break.
//
// The layout is bit-exact: storage engines may use the string directly as a
// sort key.
package sortableid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// Length is the total number of digits in an ID.
	Length = TickDigits + EntropyDigits

	// TickDigits is the width of the ticks field.
	TickDigits = 19

	// EntropyDigits is the width of the entropy field.
	EntropyDigits = 11

	// TicksPerSecond is the number of 100ns ticks in one second.
	TicksPerSecond = 10_000_000

	// SafeMargin is subtracted from the current time by Safe to obtain a
	// read boundary that tolerates clock skew between writers.
	SafeMargin = 5000 * time.Millisecond

	// unixEpochTicks is the tick count at 1970-01-01T00:00:00Z.
	unixEpochTicks int64 = 621_355_968_000_000_000

	entropyModulus uint64 = 100_000_000_000

	tick = 100 * time.Nanosecond

	// Seconds outside this range overflow the int64 tick count.
	minUnixSeconds = -unixEpochTicks / TicksPerSecond
	maxUnixSeconds = (math.MaxInt64-unixEpochTicks)/TicksPerSecond - 1
)

// ErrMalformed indicates a string that is not a valid sortable unique id.
var ErrMalformed = errors.New("malformed sortable unique id")

// ID is a sortable unique identifier. The zero value ("") sorts before every
// valid id and is used as the "from the beginning" cursor.
type ID string

// Generate builds the id for timestamp t with entropy derived from the UUID.
func Generate(t time.Time, entropy uuid.UUID) ID {
	return ID(formatTicks(Ticks(t)) + formatEntropy(entropy))
}

// New generates an id for now with random entropy.
func New(now time.Time) ID {
	return Generate(now, uuid.New())
}

// Current returns the id for now with the entropy field zeroed.
func Current(now time.Time) ID {
	return Generate(now, uuid.Nil)
}

// Safe returns a cursor SafeMargin before now with zeroed entropy.
// Every event committed by a writer whose clock is within SafeMargin of ours
// and whose id is earlier than this cursor is already visible to readers.
func Safe(now time.Time) ID {
	return Current(now.Add(-SafeMargin))
}

// Next returns a fresh id for now that sorts strictly after prev. When the
// clock has not advanced past prev, the id is stamped one tick after prev.
// An empty or malformed prev is ignored.
func Next(prev ID, now time.Time) ID {
	id := New(now)
	if prev.IsZero() || id.After(prev) {
		return id
	}
	t, err := prev.Time()
	if err != nil {
		return id
	}
	return New(t.Add(tick))
}

// Parse validates s and returns it as an ID.
func Parse(s string) (ID, error) {
	if len(s) != Length {
		return "", fmt.Errorf("%w: length %d, want %d", ErrMalformed, len(s), Length)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", fmt.Errorf("%w: non-digit %q at offset %d", ErrMalformed, s[i], i)
		}
	}
	return ID(s), nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Ticks converts t to 100ns ticks since 0001-01-01 UTC. Instants before the
// epoch clamp to zero and instants past the int64 range (around year 29228)
// clamp to math.MaxInt64, so out-of-range input keeps its place in the order.
func Ticks(t time.Time) int64 {
	sec := t.Unix()
	switch {
	case sec < minUnixSeconds:
		return 0
	case sec > maxUnixSeconds:
		return math.MaxInt64
	}
	ticks := sec*TicksPerSecond + int64(t.Nanosecond())/100 + unixEpochTicks
	if ticks < 0 {
		return 0
	}
	return ticks
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether id is the empty cursor.
func (id ID) IsZero() bool {
	return id == ""
}

// Validate reports whether id has the expected layout.
func (id ID) Validate() error {
	_, err := Parse(string(id))
	return err
}

// Ticks returns the decoded ticks field.
func (id ID) Ticks() (int64, error) {
	if err := id.Validate(); err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(id[:TickDigits]), 10, 64)
}

// Entropy returns the decoded entropy field.
func (id ID) Entropy() (int64, error) {
	if err := id.Validate(); err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(id[TickDigits:]), 10, 64)
}

// Time returns the instant encoded in the ticks field, in UTC.
func (id ID) Time() (time.Time, error) {
	ticks, err := id.Ticks()
	if err != nil {
		return time.Time{}, err
	}
	sinceUnix := ticks - unixEpochTicks
	sec := sinceUnix / TicksPerSecond
	rem := sinceUnix % TicksPerSecond
	if rem < 0 {
		sec--
		rem += TicksPerSecond
	}
	return time.Unix(sec, rem*100).UTC(), nil
}

// Safe returns the safe cursor relative to the instant encoded in id.
func (id ID) Safe() (ID, error) {
	t, err := id.Time()
	if err != nil {
		return "", err
	}
	return Safe(t), nil
}

// Compare returns -1, 0 or +1 following string order.
func (id ID) Compare(other ID) int {
	switch {
	case id < other:
		return -1
	case id > other:
		return 1
	default:
		return 0
	}
}

// Before reports whether id sorts strictly before other.
func (id ID) Before(other ID) bool { return id < other }

// BeforeOrEqual reports whether id sorts before or equal to other.
func (id ID) BeforeOrEqual(other ID) bool { return id <= other }

// After reports whether id sorts strictly after other.
func (id ID) After(other ID) bool { return id > other }

// AfterOrEqual reports whether id sorts after or equal to other.
func (id ID) AfterOrEqual(other ID) bool { return id >= other }

func formatTicks(ticks int64) string {
	return fmt.Sprintf("%0*d", TickDigits, ticks)
}

// formatEntropy reads the first eight UUID bytes as a little-endian signed
// integer and keeps the last EntropyDigits digits of its magnitude.
func formatEntropy(id uuid.UUID) string {
	v := int64(binary.LittleEndian.Uint64(id[:8]))
	var magnitude uint64
	if v < 0 {
		magnitude = uint64(-(v + 1)) + 1
	} else {
		magnitude = uint64(v)
	}
	return fmt.Sprintf("%0*d", EntropyDigits, magnitude%entropyModulus)
}
