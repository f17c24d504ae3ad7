package ids

import (
	"github.com/google/uuid"
)

// New returns a UUIDv7 string: globally unique, time-ordered, safe to
// generate concurrently without coordination. Ledger events keyed by
// these ids can be replayed in creation order by sorting on the id.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Entropy exhaustion is the only failure mode; a random v4 still
		// satisfies uniqueness even if it loses time ordering.
		return uuid.NewString()
	}
	return id.String()
}

// NewKey returns a generator-issued idempotency key for callers that do
// not supply their own.
func NewKey() string {
	return New()
}
