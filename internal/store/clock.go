package store

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies the epoch-seconds timestamps stamped into created_at and
// updated_at.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current Unix time in seconds.
func (SystemClock) Now() int64 {
	return time.Now().Unix()
}

// IDGenerator produces ids for newly created events.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 event ids, so ids created
// later sort later.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 in hyphenated form.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
