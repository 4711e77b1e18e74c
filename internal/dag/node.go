package dag

import (
	"fmt"

	"github.com/gyaneshwarpardhi/blockgraph/internal/block"
)

// Kind discriminates what a Producer does to its block.
type Kind int

const (
	// KindRegenerate recomputes the block from its dependencies.
	KindRegenerate Kind = iota
	// KindCleanup removes stale or surplus geometry of the block.
	KindCleanup
	// KindCheck verifies the block without writing to it.
	KindCheck
)

func (k Kind) String() string {
	switch k {
	case KindRegenerate:
		return "regenerate"
	case KindCleanup:
		return "cleanup"
	case KindCheck:
		return "check"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Producer regenerates one block. Execute reads the declared dependencies
// from the registry and overwrites the node's own artifact under its stable
// id. Returning false aborts the running cascade.
type Producer interface {
	Kind() Kind
	Execute() bool
}

type funcProducer struct {
	kind Kind
	fn   func() bool
}

func (p funcProducer) Kind() Kind    { return p.kind }
func (p funcProducer) Execute() bool { return p.fn() }

// Func adapts fn into a Producer of the given kind.
func Func(kind Kind, fn func() bool) Producer {
	return funcProducer{kind: kind, fn: fn}
}

// Node is one block currently materialized in the registry.
// Nodes are owned by a Graph and become stale after InvalidateGraph;
// re-fetch them by ID.
type Node struct {
	id        block.ID
	deps      []*Node // insertion order, no duplicates
	producers []Producer
	skip      bool
	context   any
}

func (n *Node) ID() block.ID { return n.id }

// Dependencies returns the nodes n reads from.
func (n *Node) Dependencies() []*Node {
	out := make([]*Node, len(n.deps))
	copy(out, n.deps)
	return out
}

// DependencyIDs returns the IDs of the nodes n reads from.
func (n *Node) DependencyIDs() []block.ID {
	out := make([]block.ID, len(n.deps))
	for i, d := range n.deps {
		out[i] = d.id
	}
	return out
}

// DependsOn reports whether n has a direct edge to id.
func (n *Node) DependsOn(id block.ID) bool {
	for _, d := range n.deps {
		if d.id == id {
			return true
		}
	}
	return false
}

func (n *Node) Producers() []Producer {
	out := make([]Producer, len(n.producers))
	copy(out, n.producers)
	return out
}

// SkipExecution reports whether cascades pass over n's producers.
func (n *Node) SkipExecution() bool { return n.skip }

// Context is the value forwarded to n's producers when they were built.
func (n *Node) Context() any { return n.context }

func (n *Node) String() string { return string(n.id) }

func (n *Node) addDependency(d *Node) bool {
	if d == nil || n.DependsOn(d.id) {
		return false
	}
	n.deps = append(n.deps, d)
	return true
}

func (n *Node) dropDependency(id block.ID) {
	kept := n.deps[:0]
	for _, d := range n.deps {
		if d.id != id {
			kept = append(kept, d)
		}
	}
	n.deps = kept
}
