// Package idgen produces the identifiers used across the live-room core:
// uuid for rooms and connections, ulid for room events and nanoid join codes.
package idgen

// Generator produces and checks one family of identifiers.
type Generator interface {
	Generate() (string, error)
	Validate(id string) (bool, string) // (valid, reason)
}
