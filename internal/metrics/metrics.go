package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blockgraph_commands_enqueued_total",
		Help: "Total number of session commands placed on the command queue, labelled by command.",
	}, []string{"command"})

	CommandsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blockgraph_commands_dropped_total",
		Help: "Total number of session commands rejected due to a full queue.",
	})

	Cascades = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blockgraph_cascades_total",
		Help: "Total number of cascades, labelled by outcome (ok, aborted).",
	}, []string{"outcome"})

	NodesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blockgraph_nodes_executed_total",
		Help: "Total number of nodes whose producers all ran successfully during cascades.",
	})

	NodesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blockgraph_nodes_skipped_total",
		Help: "Total number of nodes passed over during cascades.",
	})

	ProducerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blockgraph_producer_failures_total",
		Help: "Total number of producer failures that aborted a cascade, labelled by block and producer kind.",
	}, []string{"block", "kind"})

	CascadeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "blockgraph_cascade_duration_ms",
		Help:    "Cascade latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
	})

	Invalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blockgraph_invalidations_total",
		Help: "Total number of dependency graph rebuilds.",
	})

	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blockgraph_graph_nodes",
		Help: "Number of nodes in the session's dependency graph.",
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blockgraph_queue_utilization_ratio",
		Help: "Current command queue utilization (0–1).",
	})
)
