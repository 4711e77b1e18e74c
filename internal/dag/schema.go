package dag

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gyaneshwarpardhi/blockgraph/internal/block"
)

var (
	ErrEmptyID           = errors.New("schema: empty block id")
	ErrDuplicateEntry    = errors.New("schema: duplicate entry")
	ErrUnknownDependency = errors.New("schema: dependency on undeclared block")
	ErrSelfDependency    = errors.New("schema: block depends on itself")
	ErrCyclicSchema      = errors.New("schema: dependency cycle")
)

// Env is what a Factory knows about the node it builds producers for.
type Env struct {
	ID        block.ID
	DependsOn []block.ID
	Context   any
	// Logger is the owning graph's logger. Nil means slog.Default.
	Logger *slog.Logger
}

// Log returns the logger producers should write diagnostics to.
func (e Env) Log() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Factory builds one Producer for a node.
type Factory func(env Env) Producer

// Entry declares one block kind: how to regenerate it and what it reads.
type Entry struct {
	ID        block.ID
	Producers []Factory
	DependsOn []block.ID
	// Skip is the initial SkipExecution flag of nodes built from this entry.
	Skip bool
}

// Schema is the static declaration of a product line's blocks.
// It is immutable once built.
type Schema struct {
	entries []Entry
	index   map[block.ID]int
}

// NewSchema validates entries and returns the schema. Entries may be listed
// in any order; the declaration order is the tie-break order of the graph.
func NewSchema(entries ...Entry) (*Schema, error) {
	s := &Schema{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[block.ID]int, len(entries)),
	}
	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: entry %d", ErrEmptyID, i)
		}
		if _, dup := s.index[e.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.ID)
		}
		e.Producers = slices.Clone(e.Producers)
		e.DependsOn = slices.Clone(e.DependsOn)
		s.index[e.ID] = len(s.entries)
		s.entries = append(s.entries, e)
	}

	for _, e := range s.entries {
		for _, dep := range e.DependsOn {
			if dep == e.ID {
				return nil, fmt.Errorf("%w: %s", ErrSelfDependency, e.ID)
			}
			if _, ok := s.index[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, e.ID, dep)
			}
		}
	}

	ids := s.IDs()
	if _, err := TopologicalSort(ids, func(id block.ID) []block.ID {
		return s.entries[s.index[id]].DependsOn
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCyclicSchema, err)
	}
	return s, nil
}

// MustSchema is NewSchema for schemas declared in code; it panics on error.
func MustSchema(entries ...Entry) *Schema {
	s, err := NewSchema(entries...)
	if err != nil {
		panic(err)
	}
	return s
}

// Entry returns the declaration for id.
func (s *Schema) Entry(id block.ID) (Entry, bool) {
	i, ok := s.index[id]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Entries returns the declarations in declaration order.
func (s *Schema) Entries() []Entry {
	return slices.Clone(s.entries)
}

// IDs returns the declared block IDs in declaration order.
func (s *Schema) IDs() []block.ID {
	ids := make([]block.ID, len(s.entries))
	for i, e := range s.entries {
		ids[i] = e.ID
	}
	return ids
}

func (s *Schema) Has(id block.ID) bool {
	_, ok := s.index[id]
	return ok
}

func (s *Schema) Len() int { return len(s.entries) }
