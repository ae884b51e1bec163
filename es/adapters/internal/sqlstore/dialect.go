package sqlstore

import (
	"strconv"
	"strings"
	"time"
)

// Dialect captures what differs between the SQL backends.
type Dialect interface {
	// Name identifies the backend in logs.
	Name() string

	// Rebind rewrites ? placeholders into the driver's syntax.
	Rebind(query string) string

	// IsUniqueViolation reports whether err is a unique constraint violation.
	IsUniqueViolation(err error) bool

	// UpsertHead returns a statement taking (root, group, id, version, now)
	// that creates or advances a row of the heads table.
	UpsertHead(table string) string

	// UpsertCheckpoint returns a statement taking (name, id, now) that
	// creates or replaces a checkpoint row.
	UpsertCheckpoint(table string) string

	// Time converts a timestamp into a value the driver stores.
	Time(t time.Time) interface{}
}

// DollarRebind rewrites ? placeholders as $1, $2, ...
// Queries built here never contain a literal question mark.
func DollarRebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
