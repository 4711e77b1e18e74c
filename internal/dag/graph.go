package dag

import (
	"fmt"
	"log/slog"

	"github.com/gyaneshwarpardhi/blockgraph/internal/block"
)

// Presence is the part of the block registry the graph consults.
type Presence interface {
	HasBlock(id block.ID) bool
}

// Graph is the dependency graph of the blocks currently in a registry.
//
// A Graph is not safe for concurrent use. The owner runs every call to
// completion before issuing the next one and keeps other writers away from
// the registry meanwhile.
type Graph struct {
	schema   *Schema
	presence Presence
	logger   *slog.Logger
	context  any

	nodes []*Node // arena, creation order
	index map[block.ID]int
	order []*Node // nodes in dependency order
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the diagnostics sink. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithContext sets the value forwarded to every node's producers.
func WithContext(v any) Option {
	return func(g *Graph) { g.context = v }
}

// New returns an empty graph over schema and presence.
// Call InvalidateGraph to populate it.
func New(schema *Schema, presence Presence, opts ...Option) *Graph {
	if schema == nil || presence == nil {
		panic("dag: New requires a schema and a registry")
	}
	g := &Graph{
		schema:   schema,
		presence: presence,
		logger:   slog.Default(),
		index:    make(map[block.ID]int),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Schema returns the declaration the graph was built with.
func (g *Graph) Schema() *Schema { return g.schema }

// InvalidateGraph rebuilds every node and edge from the registry's current
// contents. Nodes handed out before the call are stale afterwards.
func (g *Graph) InvalidateGraph() {
	g.nodes = g.nodes[:0]
	g.index = make(map[block.ID]int, g.schema.Len())
	g.order = nil

	for _, e := range g.schema.entries {
		if !g.presence.HasBlock(e.ID) {
			continue
		}
		n := &Node{id: e.ID, skip: e.Skip, context: g.context}
		g.index[e.ID] = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}

	for _, n := range g.nodes {
		e, _ := g.schema.Entry(n.id)
		for _, dep := range e.DependsOn {
			if !g.schema.Has(dep) {
				panic(fmt.Sprintf("dag: %s depends on undeclared block %s", e.ID, dep))
			}
			if d, ok := g.lookup(dep); ok {
				n.addDependency(d)
			}
		}
		env := Env{ID: n.id, DependsOn: n.DependencyIDs(), Context: n.context, Logger: g.logger}
		for _, f := range e.Producers {
			n.producers = append(n.producers, f(env))
		}
	}

	g.resort()
	g.logger.Debug("dependency graph invalidated", "nodes", len(g.nodes))
}

// AddNode creates a node for id wired to those of deps that have nodes.
// It panics if id already has a node.
func (g *Graph) AddNode(id block.ID, producers []Producer, deps ...block.ID) *Node {
	if _, exists := g.index[id]; exists {
		panic(fmt.Sprintf("dag: node %s already exists", id))
	}
	n := &Node{id: id, context: g.context}
	n.producers = append(n.producers, producers...)
	for _, dep := range deps {
		if d, ok := g.lookup(dep); ok {
			n.addDependency(d)
		}
	}
	g.index[id] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.resort()
	return n
}

// DeleteNode removes the node for id and every edge pointing at it.
// Nodes that depended on it keep their content and are not re-executed.
func (g *Graph) DeleteNode(id block.ID) {
	i, ok := g.index[id]
	if !ok {
		return
	}
	g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
	g.index = make(map[block.ID]int, len(g.nodes))
	for j, n := range g.nodes {
		g.index[n.id] = j
		n.dropDependency(id)
	}
	g.resort()
}

// AddNodeDependencies adds edges from id to those of deps that have nodes.
// It returns false if id has no node.
func (g *Graph) AddNodeDependencies(id block.ID, deps ...block.ID) bool {
	n, ok := g.lookup(id)
	if !ok {
		return false
	}
	for _, dep := range deps {
		if d, ok := g.lookup(dep); ok {
			n.addDependency(d)
		}
	}
	g.resort()
	return true
}

// GetNode returns the node for id.
func (g *Graph) GetNode(id block.ID) (*Node, bool) {
	return g.lookup(id)
}

// HasNode reports whether every id has a node.
func (g *Graph) HasNode(ids ...block.ID) bool {
	for _, id := range ids {
		if _, ok := g.index[id]; !ok {
			return false
		}
	}
	return true
}

// SkipNodeExecution sets the skip flag of id's node, if there is one.
func (g *Graph) SkipNodeExecution(id block.ID, isSkip bool) {
	if n, ok := g.lookup(id); ok {
		n.skip = isSkip
	}
}

// Nodes returns all nodes in dependency order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.order))
	copy(out, g.order)
	return out
}

func (g *Graph) Len() int { return len(g.nodes) }

// Plan returns, in execution order, the nodes a cascade from changed would
// visit. Nothing is executed.
func (g *Graph) Plan(changed []block.ID) []block.ID {
	nodes := g.descendants(changed)
	ids := make([]block.ID, len(nodes))
	for i, n := range nodes {
		ids[i] = n.id
	}
	return ids
}

func (g *Graph) lookup(id block.ID) (*Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

func (g *Graph) descendants(changed []block.ID) []*Node {
	nodes, err := Descendants(g.order, changed)
	if err != nil {
		panic(fmt.Errorf("dag: %w", err))
	}
	return nodes
}

// resort recomputes the dependency order. A cycle means the schema or a
// caller-added edge is broken, so it panics.
func (g *Graph) resort() {
	order, err := TopologicalSort(g.nodes, func(n *Node) []*Node { return n.deps })
	if err != nil {
		panic(fmt.Errorf("dag: %w", err))
	}
	g.order = order
}
