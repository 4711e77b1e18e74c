package dag

import "github.com/gyaneshwarpardhi/blockgraph/internal/block"

// Descendants returns every node in nodes that reads, directly or through
// other nodes, from one of roots. The roots themselves are not included and
// each node appears once. The result is in dependency order: every node comes
// after those of its dependencies that are also in the result. Nodes without
// an ordering constraint keep their order in nodes.
func Descendants(nodes []*Node, roots []block.ID) ([]*Node, error) {
	byID := make(map[block.ID]*Node, len(nodes))
	dependents := make(map[*Node][]*Node, len(nodes))
	for _, n := range nodes {
		byID[n.id] = n
	}
	for _, n := range nodes {
		for _, d := range n.deps {
			dependents[d] = append(dependents[d], n)
		}
	}

	rootSet := block.NewSet(roots...)
	reached := make(map[*Node]struct{})
	var queue []*Node
	for _, id := range roots {
		if n, ok := byID[id]; ok {
			queue = append(queue, n)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, dep := range dependents[n] {
			if _, seen := reached[dep]; seen {
				continue
			}
			reached[dep] = struct{}{}
			queue = append(queue, dep)
		}
	}

	candidates := make([]*Node, 0, len(reached))
	for _, n := range nodes {
		if _, ok := reached[n]; ok && !rootSet.Has(n.id) {
			candidates = append(candidates, n)
		}
	}
	return TopologicalSort(candidates, func(n *Node) []*Node { return n.deps })
}
