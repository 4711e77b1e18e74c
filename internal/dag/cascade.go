package dag

import (
	"slices"

	"github.com/gyaneshwarpardhi/blockgraph/internal/block"
)

// Report describes one cascade.
type Report struct {
	Changed  []block.ID `json:"changed"`
	Order    []block.ID `json:"order"`
	Executed []block.ID `json:"executed"`
	Skipped  []block.ID `json:"skipped"`
	// Failed is the node whose producer returned false, if any.
	Failed block.ID `json:"failed,omitempty"`
	// FailedProducer is the index of that producer, or -1.
	FailedProducer int  `json:"failed_producer"`
	FailedKind     Kind `json:"-"`
	OK             bool `json:"ok"`
}

// NotifyChanged re-executes the descendants of changed, in dependency order,
// and reports whether every executed producer succeeded. The changed blocks
// themselves are not executed. Nodes listed in skip, or flagged with
// SkipExecution, keep their place in the order but their producers are not
// called. The first failing producer stops the cascade; nodes already
// executed keep their new content.
func (g *Graph) NotifyChanged(changed, skip []block.ID) bool {
	return g.Cascade(changed, skip).OK
}

// Cascade is NotifyChanged returning the full report.
func (g *Graph) Cascade(changed, skip []block.ID) Report {
	rep := Report{
		Changed:        slices.Clone(changed),
		FailedProducer: -1,
	}
	skipSet := block.NewSet(skip...)

	nodes := g.descendants(changed)
	rep.Order = make([]block.ID, len(nodes))
	for i, n := range nodes {
		rep.Order[i] = n.id
	}

	for _, n := range nodes {
		if n.skip || skipSet.Has(n.id) {
			rep.Skipped = append(rep.Skipped, n.id)
			continue
		}
		g.logger.Info("dependency update", "node", n.id)
		for i, p := range n.producers {
			if p.Execute() {
				continue
			}
			g.logger.Warn("dependency update failed", "node", n.id, "producer", i, "kind", p.Kind())
			rep.Failed = n.id
			rep.FailedProducer = i
			rep.FailedKind = p.Kind()
			return rep
		}
		rep.Executed = append(rep.Executed, n.id)
	}
	rep.OK = true
	return rep
}
