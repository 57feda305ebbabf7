// Package jobid issues opaque handles for async jobs.
package jobid

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces job handles. Implementations must be safe for concurrent use.
type Generator interface {
	NewID() string
}

// UUIDGenerator issues random (version 4) UUIDs rendered as 32 hex characters.
// With 122 random bits a collision among live handles is negligible; the job
// store still re-rolls if it ever sees one.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Sequence issues predictable handles ("prefix-1", "prefix-2", ...). It is
// meant for tests that need known or colliding IDs.
type Sequence struct {
	Prefix string
	n      atomic.Uint64
}

func (s *Sequence) NewID() string {
	return fmt.Sprintf("%s-%d", s.Prefix, s.n.Add(1))
}

// Fixed always returns the same handles in order, then repeats the last one.
// With no IDs it returns the empty string.
type Fixed struct {
	IDs []string
	i   atomic.Int64
}

func (f *Fixed) NewID() string {
	if len(f.IDs) == 0 {
		return ""
	}
	i := int(f.i.Add(1)) - 1
	if i >= len(f.IDs) {
		i = len(f.IDs) - 1
	}
	return f.IDs[i]
}
