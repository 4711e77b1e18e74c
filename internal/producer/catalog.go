package producer

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gyaneshwarpardhi/blockgraph/internal/block"
	"github.com/gyaneshwarpardhi/blockgraph/internal/dag"
	"github.com/gyaneshwarpardhi/blockgraph/internal/registry"
)

// Store is the registry surface producers may use.
type Store interface {
	registry.Registry
	RemoveArtifact(id block.ID, stable block.StableID) error
}

// Constructor builds a producer for one node, bound to a store.
type Constructor func(store Store, env dag.Env) dag.Producer

// Catalog maps producer names used in product files to constructors.
// It is safe for concurrent reads; Register should only be called at startup.
type Catalog struct {
	mu    sync.RWMutex
	store Store
	ctors map[string]Constructor
}

// NewCatalog creates an empty Catalog whose producers work against store.
func NewCatalog(store Store) *Catalog {
	return &Catalog{store: store, ctors: make(map[string]Constructor)}
}

// Default returns a Catalog with the stock producers registered.
func Default(store Store) *Catalog {
	c := NewCatalog(store)
	c.Register(NameDerive, NewDerive)
	c.Register(NameCopy, NewCopy)
	c.Register(NameRequireGeometry, NewRequireGeometry)
	c.Register(NamePruneExtras, NewPruneExtras)
	return c
}

// Register adds a constructor. Panics on duplicate name to surface misconfiguration early.
func (c *Catalog) Register(name string, ctor Constructor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.ctors[name]; exists {
		panic(fmt.Sprintf("producer catalog: duplicate name %q", name))
	}
	c.ctors[name] = ctor
}

// Lookup implements dag.FactoryLookup.
func (c *Catalog) Lookup(name string) (dag.Factory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctor, ok := c.ctors[name]
	if !ok {
		return nil, fmt.Errorf("no producer registered under %q", name)
	}
	store := c.store
	return func(env dag.Env) dag.Producer { return ctor(store, env) }, nil
}

// Names returns all registered names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.ctors))
	for k := range c.ctors {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
