package producer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gyaneshwarpardhi/blockgraph/internal/block"
	"github.com/gyaneshwarpardhi/blockgraph/internal/dag"
)

const (
	NameDerive          = "derive"
	NameCopy            = "copy"
	NameRequireGeometry = "require_geometry"
	NamePruneExtras     = "prune_extras"
)

// Derive stands in for a geometry algorithm: the new geometry is a digest of
// the node's context and its dependencies' geometry. Same inputs, same output.
type Derive struct {
	store Store
	env   dag.Env
}

func NewDerive(store Store, env dag.Env) dag.Producer {
	return &Derive{store: store, env: env}
}

func (p *Derive) Kind() dag.Kind { return dag.KindRegenerate }

func (p *Derive) Execute() bool {
	stable, ok := p.store.GetBlockStableID(p.env.ID)
	if !ok {
		p.env.Log().Warn("derive: block missing from registry", "node", p.env.ID)
		return false
	}
	h := sha256.New()
	h.Write([]byte(p.env.ID))
	if p.env.Context != nil {
		fmt.Fprintf(h, "|%v", p.env.Context)
	}
	for _, dep := range p.env.DependsOn {
		a, ok := p.store.GetBlock(dep)
		if !ok {
			p.env.Log().Warn("derive: dependency missing", "node", p.env.ID, "dependency", dep)
			return false
		}
		fmt.Fprintf(h, "|%s=", dep)
		h.Write(a.Geometry)
	}
	geom := block.Geometry(hex.EncodeToString(h.Sum(nil)))
	if err := p.store.SetBlock(p.env.ID, geom, stable); err != nil {
		p.env.Log().Warn("derive: write failed", "node", p.env.ID, "err", err)
		return false
	}
	return true
}

// Copy overwrites the block with the geometry of its single dependency.
type Copy struct {
	store Store
	env   dag.Env
}

func NewCopy(store Store, env dag.Env) dag.Producer {
	return &Copy{store: store, env: env}
}

func (p *Copy) Kind() dag.Kind { return dag.KindRegenerate }

func (p *Copy) Execute() bool {
	if len(p.env.DependsOn) != 1 {
		p.env.Log().Warn("copy: needs exactly one dependency", "node", p.env.ID, "dependencies", len(p.env.DependsOn))
		return false
	}
	src, ok := p.store.GetBlock(p.env.DependsOn[0])
	if !ok {
		return false
	}
	stable, ok := p.store.GetBlockStableID(p.env.ID)
	if !ok {
		return false
	}
	return p.store.SetBlock(p.env.ID, src.Geometry, stable) == nil
}

// RequireGeometry fails the cascade when the block has empty geometry.
type RequireGeometry struct {
	store Store
	env   dag.Env
}

func NewRequireGeometry(store Store, env dag.Env) dag.Producer {
	return &RequireGeometry{store: store, env: env}
}

func (p *RequireGeometry) Kind() dag.Kind { return dag.KindCheck }

func (p *RequireGeometry) Execute() bool {
	a, ok := p.store.GetBlock(p.env.ID)
	return ok && len(a.Geometry) > 0
}

// PruneExtras keeps the first artifact of a block kind and removes the rest.
type PruneExtras struct {
	store Store
	env   dag.Env
}

func NewPruneExtras(store Store, env dag.Env) dag.Producer {
	return &PruneExtras{store: store, env: env}
}

func (p *PruneExtras) Kind() dag.Kind { return dag.KindCleanup }

func (p *PruneExtras) Execute() bool {
	arts := p.store.GetAllBlocksOfType(p.env.ID)
	if len(arts) == 0 {
		return false
	}
	for _, a := range arts[1:] {
		if err := p.store.RemoveArtifact(p.env.ID, a.StableID); err != nil {
			p.env.Log().Warn("prune_extras: remove failed", "node", p.env.ID, "stable_id", a.StableID, "err", err)
			return false
		}
	}
	return true
}
