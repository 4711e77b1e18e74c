package dag_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/blockgraph/internal/block"
	"github.com/gyaneshwarpardhi/blockgraph/internal/dag"
)

const (
	contour = block.ID("BasePlateBottomContour")
	top     = block.ID("ScaffoldTop")
	side    = block.ID("ScaffoldSide")
	bottom  = block.ID("ScaffoldBottom")
)

// present is a registry stand-in holding only block presence.
type present block.Set

func (p present) HasBlock(id block.ID) bool { return block.Set(p).Has(id) }

func presentOf(ids ...block.ID) present { return present(block.NewSet(ids...)) }

// recorder builds producers that log their calls and fail for chosen nodes.
type recorder struct {
	calls  []block.ID
	failOn block.Set
	envs   map[block.ID]dag.Env
}

func newRecorder(failOn ...block.ID) *recorder {
	return &recorder{failOn: block.NewSet(failOn...), envs: make(map[block.ID]dag.Env)}
}

func (r *recorder) factory() dag.Factory {
	return func(env dag.Env) dag.Producer {
		r.envs[env.ID] = env
		return r.producer(env.ID)
	}
}

func (r *recorder) producer(id block.ID) dag.Producer {
	return dag.Func(dag.KindRegenerate, func() bool {
		r.calls = append(r.calls, id)
		return !r.failOn.Has(id)
	})
}

// scaffoldSchema is the three-block scaffold chain plus its input contour.
func scaffoldSchema(t *testing.T, r *recorder) *dag.Schema {
	t.Helper()
	s, err := dag.NewSchema(
		dag.Entry{ID: contour},
		dag.Entry{ID: top, Producers: []dag.Factory{r.factory()}, DependsOn: []block.ID{contour}},
		dag.Entry{ID: side, Producers: []dag.Factory{r.factory()}, DependsOn: []block.ID{contour, top}},
		dag.Entry{ID: bottom, Producers: []dag.Factory{r.factory()}, DependsOn: []block.ID{side}},
	)
	require.NoError(t, err)
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ids(nodes []*dag.Node) []block.ID {
	out := make([]block.ID, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	return out
}

// recoverError runs f and returns the error it panicked with, if any.
func recoverError(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	f()
	return nil
}
