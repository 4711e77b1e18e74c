// Package scaffold declares the scaffold product line: its block kinds and
// the schema tying them together.
package scaffold

import (
	"fmt"

	"github.com/gyaneshwarpardhi/blockgraph/internal/block"
	"github.com/gyaneshwarpardhi/blockgraph/internal/dag"
	"github.com/gyaneshwarpardhi/blockgraph/internal/producer"
)

const (
	BasePlateBottomContour block.ID = "BasePlateBottomContour"
	ScaffoldTop            block.ID = "ScaffoldTop"
	ScaffoldSide           block.ID = "ScaffoldSide"
	ScaffoldBottom         block.ID = "ScaffoldBottom"
	ScaffoldSupport        block.ID = "ScaffoldSupport"
	ScaffoldVolume         block.ID = "ScaffoldVolume"
)

// IDs lists every scaffold block kind in declaration order.
func IDs() []block.ID {
	return []block.ID{
		BasePlateBottomContour,
		ScaffoldTop,
		ScaffoldSide,
		ScaffoldBottom,
		ScaffoldSupport,
		ScaffoldVolume,
	}
}

// Schema returns the scaffold schema with producers resolved from lookup.
// It panics if lookup lacks a stock producer.
func Schema(lookup dag.FactoryLookup) *dag.Schema {
	f := func(name string) dag.Factory {
		fac, err := lookup.Lookup(name)
		if err != nil {
			panic(fmt.Sprintf("scaffold: %v", err))
		}
		return fac
	}
	return dag.MustSchema(
		dag.Entry{ID: BasePlateBottomContour},
		dag.Entry{
			ID:        ScaffoldTop,
			Producers: []dag.Factory{f(producer.NameDerive)},
			DependsOn: []block.ID{BasePlateBottomContour},
		},
		dag.Entry{
			ID:        ScaffoldSide,
			Producers: []dag.Factory{f(producer.NameDerive)},
			DependsOn: []block.ID{BasePlateBottomContour, ScaffoldTop},
		},
		dag.Entry{
			ID:        ScaffoldBottom,
			Producers: []dag.Factory{f(producer.NameDerive)},
			DependsOn: []block.ID{ScaffoldSide},
		},
		dag.Entry{
			ID:        ScaffoldSupport,
			Producers: []dag.Factory{f(producer.NamePruneExtras), f(producer.NameDerive)},
			DependsOn: []block.ID{ScaffoldBottom},
		},
		dag.Entry{
			ID:        ScaffoldVolume,
			Producers: []dag.Factory{f(producer.NameDerive), f(producer.NameRequireGeometry)},
			DependsOn: []block.ID{ScaffoldTop, ScaffoldSide, ScaffoldBottom},
		},
	)
}
