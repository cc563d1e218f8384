package idgen

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// ULID generates time-sortable ids. ulid.Make is monotonic within a process,
// so events published from one instance sort in publish order.
type ULID struct{}

func NewULID() *ULID {
	return &ULID{}
}

func (g *ULID) Generate() (string, error) {
	return ulid.Make().String(), nil
}

func (g *ULID) Validate(id string) (bool, string) {
	if len(id) != ulid.EncodedSize {
		return false, fmt.Sprintf("expected length %d, got %d", ulid.EncodedSize, len(id))
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return false, fmt.Sprintf("invalid ULID format: %v", err)
	}
	return true, ""
}
