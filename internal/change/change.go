package change

import (
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/blockgraph/internal/block"
)

// Set is one notification that blocks changed: the input of a cascade.
type Set struct {
	ID         string     `json:"id"`
	Changed    []block.ID `json:"changed"`
	Skip       []block.ID `json:"skip,omitempty"`
	Source     string     `json:"source,omitempty"` // "api", "edit", "cli", ...
	ReceivedAt time.Time  `json:"-"`
}

// New returns a Set with a fresh ID.
func New(source string, changed []block.ID, skip ...block.ID) *Set {
	return &Set{
		ID:         uuid.NewString(),
		Changed:    changed,
		Skip:       skip,
		Source:     source,
		ReceivedAt: time.Now(),
	}
}

// Normalize fills in a missing ID and arrival time.
func (s *Set) Normalize() {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.ReceivedAt.IsZero() {
		s.ReceivedAt = time.Now()
	}
}
