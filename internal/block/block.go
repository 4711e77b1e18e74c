package block

import (
	"slices"
	"strings"
)

// ID names a kind of building block, e.g. "ScaffoldTop".
// Each product line declares its closed set of IDs as typed constants.
type ID string

func (id ID) String() string { return string(id) }

// StableID is the identity an artifact keeps across regenerations.
// Downstream references hold on to it, so producers overwrite by StableID.
type StableID string

// Geometry is the opaque content of an artifact.
type Geometry []byte

// Artifact is the registry's view of one materialized block.
type Artifact struct {
	ID       ID       `json:"id"`
	StableID StableID `json:"stable_id"`
	Geometry Geometry `json:"geometry"`
	Revision uint64   `json:"revision"`
}

// Set is an unordered collection of IDs.
type Set map[ID]struct{}

// NewSet builds a Set from ids.
func NewSet(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set. A nil Set is empty.
func (s Set) Has(id ID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []ID {
	out := make([]ID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// ParseList splits a comma separated list, dropping blanks.
func ParseList(raw string) []ID {
	var out []ID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, ID(part))
	}
	return out
}

// Strings converts ids for logging and JSON output.
func Strings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
