package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces opaque aggregate identifiers
type Generator interface {
	NewID() string
}

// UUID generates random (v4) UUIDs
type UUID struct{}

// NewID returns a new UUID string
func (UUID) NewID() string {
	return uuid.NewString()
}

// Sequence produces predictable ids ("<prefix>-1", "<prefix>-2", ...)
type Sequence struct {
	prefix string
	n      atomic.Int64
}

// NewSequence creates a sequence generator with the given prefix
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// NewID returns the next id in the sequence
func (s *Sequence) NewID() string {
	return fmt.Sprintf("%s-%d", s.prefix, s.n.Add(1))
}

// IsUUID reports whether id parses as a UUID
func IsUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
