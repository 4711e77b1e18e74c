package dag_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/blockgraph/internal/block"
	"github.com/gyaneshwarpardhi/blockgraph/internal/dag"
)

func TestScaffoldCascadeOrder(t *testing.T) {
	r := newRecorder()
	g := dag.New(scaffoldSchema(t, r), presentOf(contour, top, side, bottom), dag.WithLogger(quietLogger()))
	g.InvalidateGraph()

	ok := g.NotifyChanged([]block.ID{contour}, nil)
	assert.True(t, ok)
	assert.Equal(t, []block.ID{top, side, bottom}, r.calls)
}

func TestScaffoldWithoutContour(t *testing.T) {
	r := newRecorder()
	reg := presentOf(contour, top, side, bottom)
	g := dag.New(scaffoldSchema(t, r), reg, dag.WithLogger(quietLogger()))
	g.InvalidateGraph()
	require.True(t, g.HasNode(contour, top, side, bottom))

	// The contour is gone: only the blocks still present keep nodes.
	delete(reg, contour)
	g.InvalidateGraph()
	assert.False(t, g.HasNode(contour))
	assert.True(t, g.HasNode(top, side, bottom))
	topNode, _ := g.GetNode(top)
	assert.Empty(t, topNode.Dependencies(), "edge to a missing block must not exist")
	assert.True(t, g.NotifyChanged([]block.ID{contour}, nil))
	assert.Empty(t, r.calls)

	// A registry where none of the scaffold exists yields an empty graph.
	empty := presentOf()
	g = dag.New(scaffoldSchema(t, r), empty, dag.WithLogger(quietLogger()))
	g.InvalidateGraph()
	assert.Zero(t, g.Len())
	assert.False(t, g.HasNode(top))
	assert.False(t, g.HasNode(side))
	assert.False(t, g.HasNode(bottom))

	r.calls = nil
	assert.True(t, g.NotifyChanged([]block.ID{contour}, nil))
	assert.Empty(t, r.calls)
}

func TestInvalidateGraph_ExistenceInvariant(t *testing.T) {
	r := newRecorder()
	s := scaffoldSchema(t, r)
	cases := [][]block.ID{
		{contour, top, side, bottom},
		{top, bottom},
		{contour, side},
		{},
	}
	for _, have := range cases {
		reg := presentOf(have...)
		g := dag.New(s, reg, dag.WithLogger(quietLogger()))
		g.InvalidateGraph()

		for _, id := range s.IDs() {
			assert.Equal(t, reg.HasBlock(id), g.HasNode(id), "node %s with registry %v", id, have)
		}
		for _, n := range g.Nodes() {
			for _, d := range n.DependencyIDs() {
				assert.True(t, g.HasNode(d), "edge %s -> %s points at a missing node", n.ID(), d)
				assert.True(t, reg.HasBlock(d))
			}
		}
		assert.Len(t, g.Nodes(), len(have))
	}
}

func TestInvalidateGraph_RebuildsNodes(t *testing.T) {
	r := newRecorder()
	g := dag.New(scaffoldSchema(t, r), presentOf(contour, top), dag.WithLogger(quietLogger()))
	g.InvalidateGraph()
	before, _ := g.GetNode(top)

	g.InvalidateGraph()
	after, _ := g.GetNode(top)
	assert.NotSame(t, before, after, "no node survives an invalidation")
	assert.Equal(t, before.ID(), after.ID())
}

func TestNodesAreSortedIdempotently(t *testing.T) {
	r := newRecorder()
	// Declared out of dependency order on purpose.
	s, err := dag.NewSchema(
		dag.Entry{ID: bottom, Producers: []dag.Factory{r.factory()}, DependsOn: []block.ID{side}},
		dag.Entry{ID: side, Producers: []dag.Factory{r.factory()}, DependsOn: []block.ID{contour, top}},
		dag.Entry{ID: top, Producers: []dag.Factory{r.factory()}, DependsOn: []block.ID{contour}},
		dag.Entry{ID: contour},
	)
	require.NoError(t, err)
	g := dag.New(s, presentOf(contour, top, side, bottom), dag.WithLogger(quietLogger()))
	g.InvalidateGraph()

	first := ids(g.Nodes())
	assert.Equal(t, []block.ID{contour, top, side, bottom}, first)
	g.InvalidateGraph()
	assert.Equal(t, first, ids(g.Nodes()))
	assert.Equal(t, g.Plan([]block.ID{contour}), g.Plan([]block.ID{contour}))
}

func TestDeleteNode_DropsEdges(t *testing.T) {
	r := newRecorder()
	g := dag.New(scaffoldSchema(t, r), presentOf(contour, top, side, bottom), dag.WithLogger(quietLogger()))
	g.InvalidateGraph()

	g.DeleteNode(top)
	assert.False(t, g.HasNode(top))
	for _, n := range g.Nodes() {
		assert.False(t, n.DependsOn(top), "%s still depends on deleted node", n.ID())
	}
	// Dependents stay and are not re-executed.
	assert.True(t, g.HasNode(side, bottom))
	assert.Empty(t, r.calls)

	assert.True(t, g.NotifyChanged([]block.ID{contour}, nil))
	assert.Equal(t, []block.ID{side, bottom}, r.calls)

	g.DeleteNode("NotThere")
	assert.Equal(t, 3, g.Len())
}

func TestAddNode(t *testing.T) {
	r := newRecorder()
	g := dag.New(scaffoldSchema(t, r), presentOf(contour, top), dag.WithLogger(quietLogger()))
	g.InvalidateGraph()

	n := g.AddNode("Extra", []dag.Producer{r.producer("Extra")}, top, "Missing")
	assert.Equal(t, block.ID("Extra"), n.ID())
	assert.Equal(t, []block.ID{top}, n.DependencyIDs(), "edges only to existing nodes")

	assert.Panics(t, func() { g.AddNode(top, nil) })
	assert.Panics(t, func() { g.AddNode("Extra", nil) })

	assert.True(t, g.NotifyChanged([]block.ID{contour}, nil))
	assert.Equal(t, []block.ID{top, "Extra"}, r.calls)
}

func TestAddNodeDependencies(t *testing.T) {
	r := newRecorder()
	g := dag.New(scaffoldSchema(t, r), presentOf(contour, top, side, bottom), dag.WithLogger(quietLogger()))
	g.InvalidateGraph()

	assert.False(t, g.AddNodeDependencies("Missing", top))

	n := g.AddNode("Marker", []dag.Producer{r.producer("Marker")})
	assert.Empty(t, g.Plan([]block.ID{bottom}))
	require.True(t, g.AddNodeDependencies("Marker", bottom, bottom, "Missing"))
	assert.Equal(t, []block.ID{bottom}, n.DependencyIDs())
	assert.Equal(t, []block.ID{"Marker"}, g.Plan([]block.ID{bottom}))

	err := recoverError(func() { g.AddNodeDependencies(contour, "Marker") })
	require.Error(t, err, "a cycle must abort loudly")
	assert.NotNil(t, dag.AsCycleError[*dag.Node](err))
}

func TestSkipSemantics(t *testing.T) {
	r := newRecorder()
	g := dag.New(scaffoldSchema(t, r), presentOf(contour, top, side, bottom), dag.WithLogger(quietLogger()))
	g.InvalidateGraph()

	g.SkipNodeExecution(side, true)
	g.SkipNodeExecution("Missing", true)
	n, _ := g.GetNode(side)
	assert.True(t, n.SkipExecution())

	rep := g.Cascade([]block.ID{contour}, nil)
	assert.True(t, rep.OK)
	assert.Equal(t, []block.ID{top, side, bottom}, rep.Order)
	assert.Equal(t, []block.ID{side}, rep.Skipped)
	assert.Equal(t, []block.ID{top, bottom}, r.calls, "successors of a skipped node still run")

	r.calls = nil
	g.SkipNodeExecution(side, false)
	assert.True(t, g.NotifyChanged([]block.ID{contour}, []block.ID{top}))
	assert.Equal(t, []block.ID{side, bottom}, r.calls)
}

func TestSkipFlagFromSchema(t *testing.T) {
	r := newRecorder()
	s, err := dag.NewSchema(
		dag.Entry{ID: contour},
		dag.Entry{ID: top, Producers: []dag.Factory{r.factory()}, DependsOn: []block.ID{contour}, Skip: true},
	)
	require.NoError(t, err)
	g := dag.New(s, presentOf(contour, top), dag.WithLogger(quietLogger()))
	g.InvalidateGraph()

	assert.True(t, g.NotifyChanged([]block.ID{contour}, nil))
	assert.Empty(t, r.calls)
}

func TestCascadeAbort(t *testing.T) {
	r := newRecorder(top)
	g := dag.New(scaffoldSchema(t, r), presentOf(contour, top, side, bottom), dag.WithLogger(quietLogger()))
	g.InvalidateGraph()

	rep := g.Cascade([]block.ID{contour}, nil)
	assert.False(t, rep.OK)
	assert.Equal(t, top, rep.Failed)
	assert.Equal(t, 0, rep.FailedProducer)
	assert.Equal(t, []block.ID{top}, r.calls, "nothing after the failure runs")
	assert.Empty(t, rep.Executed)

	r = newRecorder(side)
	g = dag.New(scaffoldSchema(t, r), presentOf(contour, top, side, bottom), dag.WithLogger(quietLogger()))
	g.InvalidateGraph()
	assert.False(t, g.NotifyChanged([]block.ID{contour}, nil))
	assert.Equal(t, []block.ID{top, side}, r.calls)
}

func TestCascadeStopsWithinNode(t *testing.T) {
	var calls []string
	step := func(name string, ok bool) dag.Factory {
		return func(dag.Env) dag.Producer {
			return dag.Func(dag.KindRegenerate, func() bool {
				calls = append(calls, name)
				return ok
			})
		}
	}
	s, err := dag.NewSchema(
		dag.Entry{ID: "A"},
		dag.Entry{ID: "B", DependsOn: []block.ID{"A"}, Producers: []dag.Factory{step("b1", true), step("b2", false), step("b3", true)}},
		dag.Entry{ID: "C", DependsOn: []block.ID{"B"}, Producers: []dag.Factory{step("c1", true)}},
	)
	require.NoError(t, err)
	g := dag.New(s, presentOf("A", "B", "C"), dag.WithLogger(quietLogger()))
	g.InvalidateGraph()

	rep := g.Cascade([]block.ID{"A"}, nil)
	assert.False(t, rep.OK)
	assert.Equal(t, block.ID("B"), rep.Failed)
	assert.Equal(t, 1, rep.FailedProducer)
	assert.Equal(t, []string{"b1", "b2"}, calls)
}

func TestOnlyDescendantsRun(t *testing.T) {
	r := newRecorder()
	g := dag.New(scaffoldSchema(t, r), presentOf(contour, top, side, bottom), dag.WithLogger(quietLogger()))
	g.InvalidateGraph()

	assert.True(t, g.NotifyChanged([]block.ID{side}, nil))
	assert.Equal(t, []block.ID{bottom}, r.calls)

	r.calls = nil
	assert.True(t, g.NotifyChanged([]block.ID{top, side}, nil))
	assert.Equal(t, []block.ID{bottom}, r.calls, "changed blocks are never re-executed")

	r.calls = nil
	assert.True(t, g.NotifyChanged([]block.ID{bottom}, nil))
	assert.Empty(t, r.calls)
}

func TestProducersReceiveEnv(t *testing.T) {
	r := newRecorder()
	caseRef := map[string]string{"case_id": "case-7"}
	logger := quietLogger()
	g := dag.New(scaffoldSchema(t, r), presentOf(top, side), dag.WithLogger(logger), dag.WithContext(caseRef))
	g.InvalidateGraph()

	env := r.envs[side]
	assert.Equal(t, side, env.ID)
	assert.Equal(t, []block.ID{top}, env.DependsOn, "only present dependencies")
	assert.Equal(t, caseRef, env.Context)
	assert.Same(t, logger, env.Log())
	assert.Same(t, slog.Default(), dag.Env{}.Log())

	n, _ := g.GetNode(side)
	assert.Equal(t, caseRef, n.Context())
	assert.Len(t, n.Producers(), 1)
}

func TestCascadeLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := newRecorder(side)
	g := dag.New(scaffoldSchema(t, r), presentOf(contour, top, side, bottom), dag.WithLogger(logger))
	g.InvalidateGraph()
	g.NotifyChanged([]block.ID{contour}, nil)

	out := buf.String()
	assert.Contains(t, out, `msg="dependency update" node=ScaffoldTop`)
	assert.Contains(t, out, `msg="dependency update" node=ScaffoldSide`)
	assert.Contains(t, out, `msg="dependency update failed" node=ScaffoldSide`)
	assert.NotContains(t, out, "node=ScaffoldBottom")
}

func TestReportOwnsChanged(t *testing.T) {
	r := newRecorder()
	g := dag.New(scaffoldSchema(t, r), presentOf(contour, top), dag.WithLogger(quietLogger()))
	g.InvalidateGraph()

	changed := []block.ID{contour}
	rep := g.Cascade(changed, nil)
	changed[0] = bottom
	assert.Equal(t, []block.ID{contour}, rep.Changed)
}

func TestNewPanicsWithoutCollaborators(t *testing.T) {
	assert.Panics(t, func() { dag.New(nil, presentOf()) })
}
