package dag

import (
	"fmt"

	"github.com/gyaneshwarpardhi/blockgraph/internal/block"
	"github.com/gyaneshwarpardhi/blockgraph/internal/config"
)

// FactoryLookup resolves producer names used in product files.
type FactoryLookup interface {
	Lookup(name string) (Factory, error)
}

// Build constructs a Schema from a validated ProductConfig.
// Producer names are resolved here; nothing is looked up during a cascade.
func Build(cfg *config.ProductConfig, lookup FactoryLookup) (*Schema, error) {
	entries := make([]Entry, 0, len(cfg.Blocks))
	for _, b := range cfg.Blocks {
		e := Entry{
			ID:        block.ID(b.ID),
			DependsOn: make([]block.ID, len(b.DependsOn)),
			Skip:      b.Skip,
		}
		for i, dep := range b.DependsOn {
			e.DependsOn[i] = block.ID(dep)
		}
		for _, name := range b.Producers {
			f, err := lookup.Lookup(name)
			if err != nil {
				return nil, fmt.Errorf("block %s: %w", b.ID, err)
			}
			e.Producers = append(e.Producers, f)
		}
		entries = append(entries, e)
	}
	s, err := NewSchema(entries...)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", cfg.Product, err)
	}
	return s, nil
}
