package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/blockgraph/internal/block"
)

var (
	ErrBlockNotFound    = errors.New("registry: block not found")
	ErrStableIDNotFound = errors.New("registry: stable id not found")
)

// Registry is the artifact store the graph and producers work against.
type Registry interface {
	HasBlock(id block.ID) bool
	// GetBlock returns the first artifact of id.
	GetBlock(id block.ID) (block.Artifact, bool)
	GetBlockStableID(id block.ID) (block.StableID, bool)
	// SetBlock overwrites the artifact of id that carries stable, so
	// references to stable stay valid.
	SetBlock(id block.ID, geometry block.Geometry, stable block.StableID) error
	// GetAllBlocksOfType returns every artifact of a block kind with multiplicity.
	GetAllBlocksOfType(id block.ID) []block.Artifact
}

// Memory is an in-process Registry. It is safe for concurrent reads; writes
// are expected to come from one command at a time.
type Memory struct {
	mu     sync.RWMutex
	blocks map[block.ID][]block.Artifact
	newID  func() block.StableID
}

var _ Registry = (*Memory)(nil)

// NewMemory creates an empty Memory registry.
func NewMemory() *Memory {
	return &Memory{
		blocks: make(map[block.ID][]block.Artifact),
		newID:  func() block.StableID { return block.StableID(uuid.NewString()) },
	}
}

func (m *Memory) HasBlock(id block.ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks[id]) > 0
}

func (m *Memory) GetBlock(id block.ID) (block.Artifact, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	arts := m.blocks[id]
	if len(arts) == 0 {
		return block.Artifact{}, false
	}
	return clone(arts[0]), true
}

func (m *Memory) GetBlockStableID(id block.ID) (block.StableID, bool) {
	a, ok := m.GetBlock(id)
	return a.StableID, ok
}

func (m *Memory) SetBlock(id block.ID, geometry block.Geometry, stable block.StableID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arts, ok := m.blocks[id]
	if !ok || len(arts) == 0 {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	for i := range arts {
		if arts[i].StableID != stable {
			continue
		}
		arts[i].Geometry = slices.Clone(geometry)
		arts[i].Revision++
		return nil
	}
	return fmt.Errorf("%w: %s/%s", ErrStableIDNotFound, id, stable)
}

func (m *Memory) GetAllBlocksOfType(id block.ID) []block.Artifact {
	m.mu.RLock()
	defer m.mu.RUnlock()
	arts := m.blocks[id]
	out := make([]block.Artifact, len(arts))
	for i, a := range arts {
		out[i] = clone(a)
	}
	return out
}

// AddBlock stores a new artifact of id under a fresh stable id.
// This is a structural change: the owner must invalidate its graph.
func (m *Memory) AddBlock(id block.ID, geometry block.Geometry) block.Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := block.Artifact{
		ID:       id,
		StableID: m.newID(),
		Geometry: slices.Clone(geometry),
		Revision: 1,
	}
	m.blocks[id] = append(m.blocks[id], a)
	return clone(a)
}

// RemoveBlock drops every artifact of id and returns how many there were.
// This is a structural change: the owner must invalidate its graph.
func (m *Memory) RemoveBlock(id block.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.blocks[id])
	delete(m.blocks, id)
	return n
}

// RemoveArtifact drops the single artifact of id carrying stable.
func (m *Memory) RemoveArtifact(id block.ID, stable block.StableID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arts := m.blocks[id]
	i := slices.IndexFunc(arts, func(a block.Artifact) bool { return a.StableID == stable })
	if i < 0 {
		return fmt.Errorf("%w: %s/%s", ErrStableIDNotFound, id, stable)
	}
	arts = slices.Delete(arts, i, i+1)
	if len(arts) == 0 {
		delete(m.blocks, id)
	} else {
		m.blocks[id] = arts
	}
	return nil
}

// IDs returns the block kinds currently stored, sorted.
func (m *Memory) IDs() []block.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := make(block.Set, len(m.blocks))
	for id := range m.blocks {
		s[id] = struct{}{}
	}
	return s.Sorted()
}

func clone(a block.Artifact) block.Artifact {
	a.Geometry = slices.Clone(a.Geometry)
	return a
}
