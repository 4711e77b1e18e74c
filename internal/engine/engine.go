package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gyaneshwarpardhi/blockgraph/internal/block"
	"github.com/gyaneshwarpardhi/blockgraph/internal/change"
	"github.com/gyaneshwarpardhi/blockgraph/internal/config"
	"github.com/gyaneshwarpardhi/blockgraph/internal/dag"
	"github.com/gyaneshwarpardhi/blockgraph/internal/metrics"
	"github.com/gyaneshwarpardhi/blockgraph/internal/producer"
	"github.com/gyaneshwarpardhi/blockgraph/internal/registry"
)

var tracer = otel.Tracer("blockgraph.engine")

var (
	ErrQueueFull    = errors.New("engine: command queue full")
	ErrTimeout      = errors.New("engine: command timed out")
	ErrUnknownBlock = errors.New("engine: block not declared by schema")
)

// Options tunes a Session.
type Options struct {
	QueueDepth     int
	CommandTimeout time.Duration
	Logger         *slog.Logger
	// Context is forwarded to every producer, e.g. a case reference.
	Context any
	Product string
}

// Session is one editing session: it owns the block registry and its
// dependency graph and runs every command to completion, one at a time.
type Session struct {
	reg     *registry.Memory
	catalog *producer.Catalog
	graph   *dag.Graph // only touched from the command worker
	pool    *workerPool[*command]
	opts    Options
	logger  *slog.Logger
}

type command struct {
	ctx  context.Context
	run  func(ctx context.Context)
	done chan struct{}
}

// Result is the outcome of a content command.
type Result struct {
	Artifact block.Artifact `json:"artifact"`
	Report   dag.Report     `json:"report"`
}

// NodeView describes one graph node.
type NodeView struct {
	ID        block.ID   `json:"id"`
	DependsOn []block.ID `json:"depends_on"`
	Producers []string   `json:"producers"`
	Skip      bool       `json:"skip"`
}

// GraphView is a snapshot of the graph in dependency order.
type GraphView struct {
	Product string     `json:"product"`
	Nodes   []NodeView `json:"nodes"`
}

// NewSession builds the graph for schema over reg and starts the command worker.
// Producers resolve through catalog, which must be bound to reg.
func NewSession(ctx context.Context, reg *registry.Memory, catalog *producer.Catalog, schema *dag.Schema, opts Options) *Session {
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 64
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Session{
		reg:     reg,
		catalog: catalog,
		opts:    opts,
		logger:  opts.Logger,
	}
	s.graph = s.newGraph(schema)
	s.invalidate()

	s.pool = newWorkerPool[*command](ctx, 1, opts.QueueDepth, func(_ context.Context, c *command) {
		defer close(c.done)
		c.run(c.ctx)
	})
	return s
}

// FromConfig creates a registry seeded from cfg and a session over it.
func FromConfig(ctx context.Context, cfg *config.ProductConfig, logger *slog.Logger) (*Session, error) {
	reg := registry.NewMemory()
	catalog := producer.Default(reg)
	if err := config.Validate(cfg, catalog.Names()); err != nil {
		return nil, err
	}
	schema, err := dag.Build(cfg, catalog)
	if err != nil {
		return nil, err
	}
	for _, b := range cfg.Blocks {
		if b.Seed != nil {
			reg.AddBlock(block.ID(b.ID), block.Geometry(*b.Seed))
		}
	}
	var caseCtx any
	if len(cfg.Context) > 0 {
		caseCtx = cfg.Context
	}
	return NewSession(ctx, reg, catalog, schema, Options{
		QueueDepth:     cfg.Engine.QueueDepth,
		CommandTimeout: time.Duration(cfg.Engine.CommandTimeoutMs) * time.Millisecond,
		Logger:         logger,
		Context:        caseCtx,
		Product:        cfg.Product,
	}), nil
}

// Registry exposes the session's registry for reads.
func (s *Session) Registry() *registry.Memory { return s.reg }

// Catalog exposes the producers the session resolves schemas against.
func (s *Session) Catalog() *producer.Catalog { return s.catalog }

// AddBlock stores a new artifact, rebuilds the graph and re-executes the
// blocks that read from it.
func (s *Session) AddBlock(ctx context.Context, id block.ID, geom block.Geometry) (Result, error) {
	return call(s, ctx, "add_block", func(ctx context.Context) (Result, error) {
		if !s.graph.Schema().Has(id) {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownBlock, id)
		}
		var res Result
		res.Artifact = s.reg.AddBlock(id, geom)
		s.invalidate()
		res.Report = s.cascade(ctx, change.New("add", []block.ID{id}))
		return res, nil
	})
}

// EditBlock overwrites a block's content and re-executes its descendants.
func (s *Session) EditBlock(ctx context.Context, id block.ID, geom block.Geometry, skip ...block.ID) (Result, error) {
	return call(s, ctx, "edit_block", func(ctx context.Context) (Result, error) {
		stable, ok := s.reg.GetBlockStableID(id)
		if !ok {
			return Result{}, fmt.Errorf("%w: %s", registry.ErrBlockNotFound, id)
		}
		if err := s.reg.SetBlock(id, geom, stable); err != nil {
			return Result{}, err
		}
		var res Result
		res.Report = s.cascade(ctx, change.New("edit", []block.ID{id}, skip...))
		res.Artifact, _ = s.reg.GetBlock(id)
		return res, nil
	})
}

// RemoveBlock deletes every artifact of id and rebuilds the graph.
// Blocks that read from it are left as they are.
func (s *Session) RemoveBlock(ctx context.Context, id block.ID) (int, error) {
	return call(s, ctx, "remove_block", func(context.Context) (int, error) {
		removed := s.reg.RemoveBlock(id)
		if removed > 0 {
			s.invalidate()
		}
		return removed, nil
	})
}

// Notify runs a cascade for a change set.
func (s *Session) Notify(ctx context.Context, cs *change.Set) (dag.Report, error) {
	cs.Normalize()
	return call(s, ctx, "notify", func(ctx context.Context) (dag.Report, error) {
		return s.cascade(ctx, cs), nil
	})
}

// Plan returns the execution order a cascade from changed would follow.
func (s *Session) Plan(ctx context.Context, changed []block.ID) ([]block.ID, error) {
	return call(s, ctx, "plan", func(context.Context) ([]block.ID, error) {
		return s.graph.Plan(changed), nil
	})
}

// SkipNode sets the skip flag of id's node. It reports whether the node exists.
// The flag lives on the node, so AddBlock, RemoveBlock and schema swaps,
// which rebuild the graph, reset it to the schema's default.
func (s *Session) SkipNode(ctx context.Context, id block.ID, skip bool) (bool, error) {
	return call(s, ctx, "skip_node", func(context.Context) (bool, error) {
		found := s.graph.HasNode(id)
		s.graph.SkipNodeExecution(id, skip)
		return found, nil
	})
}

// Snapshot describes the graph as it is now.
func (s *Session) Snapshot(ctx context.Context) (GraphView, error) {
	return call(s, ctx, "snapshot", func(context.Context) (GraphView, error) {
		view := GraphView{Product: s.opts.Product}
		for _, n := range s.graph.Nodes() {
			nv := NodeView{ID: n.ID(), DependsOn: n.DependencyIDs(), Skip: n.SkipExecution()}
			for _, p := range n.Producers() {
				nv.Producers = append(nv.Producers, p.Kind().String())
			}
			view.Nodes = append(view.Nodes, nv)
		}
		return view, nil
	})
}

// SwapSchema replaces the graph with one built from schema.
func (s *Session) SwapSchema(ctx context.Context, schema *dag.Schema) error {
	return s.do(ctx, "swap_schema", func(context.Context) {
		s.graph = s.newGraph(schema)
		s.invalidate()
	})
}

// Reconfigure validates cfg, builds its schema against the session's catalog
// and swaps it in. Blocks are not re-seeded.
func (s *Session) Reconfigure(ctx context.Context, cfg *config.ProductConfig) error {
	if err := config.Validate(cfg, s.catalog.Names()); err != nil {
		return err
	}
	schema, err := dag.Build(cfg, s.catalog)
	if err != nil {
		return err
	}
	return s.SwapSchema(ctx, schema)
}

// QueueUtilization returns queue used / capacity (0–1).
func (s *Session) QueueUtilization() float64 {
	if s.pool.QueueCap() == 0 {
		return 0
	}
	return float64(s.pool.QueueLen()) / float64(s.pool.QueueCap())
}

// Shutdown lets queued commands finish and stops the worker.
func (s *Session) Shutdown() {
	s.pool.Drain()
}

func (s *Session) newGraph(schema *dag.Schema) *dag.Graph {
	return dag.New(schema, s.reg, dag.WithLogger(s.logger), dag.WithContext(s.opts.Context))
}

// call runs fn as a command and returns what it produced. When the wait is
// abandoned the zero value is returned and fn's result is never read.
func call[R any](s *Session, ctx context.Context, name string, fn func(ctx context.Context) (R, error)) (R, error) {
	var (
		out    R
		cmdErr error
	)
	if err := s.do(ctx, name, func(ctx context.Context) { out, cmdErr = fn(ctx) }); err != nil {
		var zero R
		return zero, err
	}
	return out, cmdErr
}

// do queues fn and waits for it. On timeout or cancellation the command
// still runs to completion; only the wait is abandoned.
func (s *Session) do(ctx context.Context, name string, fn func(ctx context.Context)) error {
	ctx, span := tracer.Start(ctx, "session."+name)
	defer span.End()

	c := &command{ctx: ctx, run: fn, done: make(chan struct{})}
	if !s.pool.Submit(c) {
		metrics.CommandsDropped.Inc()
		span.SetStatus(codes.Error, "queue full")
		return fmt.Errorf("%s: %w (capacity %d)", name, ErrQueueFull, s.pool.QueueCap())
	}
	metrics.CommandsEnqueued.WithLabelValues(name).Inc()
	metrics.QueueUtilization.Set(s.QueueUtilization())

	timer := time.NewTimer(s.opts.CommandTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return nil
	case <-timer.C:
		span.SetStatus(codes.Error, "timeout")
		return fmt.Errorf("%s: %w after %v", name, ErrTimeout, s.opts.CommandTimeout)
	case <-ctx.Done():
		span.SetStatus(codes.Error, "canceled")
		return ctx.Err()
	}
}

func (s *Session) invalidate() {
	s.graph.InvalidateGraph()
	metrics.Invalidations.Inc()
	metrics.GraphNodes.Set(float64(s.graph.Len()))
}

func (s *Session) cascade(ctx context.Context, cs *change.Set) dag.Report {
	_, span := tracer.Start(ctx, "dag.Cascade", trace.WithAttributes(
		attribute.String("change.id", cs.ID),
		attribute.String("change.source", cs.Source),
		attribute.StringSlice("change.blocks", block.Strings(cs.Changed)),
	))
	defer span.End()

	start := time.Now()
	rep := s.graph.Cascade(cs.Changed, cs.Skip)
	elapsed := time.Since(start)

	metrics.CascadeDuration.Observe(float64(elapsed.Milliseconds()))
	metrics.NodesExecuted.Add(float64(len(rep.Executed)))
	metrics.NodesSkipped.Add(float64(len(rep.Skipped)))
	span.SetAttributes(
		attribute.Int("dag.order", len(rep.Order)),
		attribute.Int("dag.executed", len(rep.Executed)),
	)
	if rep.OK {
		metrics.Cascades.WithLabelValues("ok").Inc()
	} else {
		metrics.Cascades.WithLabelValues("aborted").Inc()
		metrics.ProducerFailures.WithLabelValues(string(rep.Failed), rep.FailedKind.String()).Inc()
		span.SetAttributes(attribute.String("dag.failed", string(rep.Failed)))
		span.SetStatus(codes.Error, "producer failed")
	}

	s.logger.Info("cascade finished",
		"change_id", cs.ID,
		"source", cs.Source,
		"ok", rep.OK,
		"order", len(rep.Order),
		"executed", len(rep.Executed),
		"skipped", len(rep.Skipped),
		"duration", elapsed,
	)
	return rep
}
