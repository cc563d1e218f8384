package idgen

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	DefaultJoinCodeSize = 8
	// JoinCodeAlphabet drops characters that are easy to misread aloud.
	JoinCodeAlphabet = "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"
)

// NanoID generates fixed-size codes from an alphabet.
type NanoID struct {
	size     int
	alphabet string
}

// NewNanoID creates a NanoID generator. size must be between 1 and 64.
func NewNanoID(size int, alphabet string) (*NanoID, error) {
	if size < 1 || size > 64 {
		return nil, fmt.Errorf("nanoid size must be between 1 and 64, got %d", size)
	}
	if len(alphabet) < 2 {
		return nil, fmt.Errorf("nanoid alphabet must have at least 2 characters, got %d", len(alphabet))
	}
	return &NanoID{size: size, alphabet: alphabet}, nil
}

// NewJoinCode returns the generator used for room join codes.
func NewJoinCode() *NanoID {
	return &NanoID{size: DefaultJoinCodeSize, alphabet: JoinCodeAlphabet}
}

func (g *NanoID) Generate() (string, error) {
	id, err := gonanoid.Generate(g.alphabet, g.size)
	if err != nil {
		return "", fmt.Errorf("failed to generate nanoid: %w", err)
	}
	return id, nil
}

func (g *NanoID) Validate(id string) (bool, string) {
	if len(id) != g.size {
		return false, fmt.Sprintf("expected length %d, got %d", g.size, len(id))
	}
	for _, c := range id {
		if !strings.ContainsRune(g.alphabet, c) {
			return false, fmt.Sprintf("character '%c' not in alphabet", c)
		}
	}
	return true, ""
}
