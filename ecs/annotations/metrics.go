package annotations

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics turns annotation events into prometheus counters
type Metrics struct {
	QueriesBuilt    prometheus.Counter
	BuildFailures   prometheus.Counter
	Batches         *prometheus.CounterVec
	Rows            prometheus.Counter
	CacheRebuilds   prometheus.Counter
	GroupsCreated   prometheus.Counter
	GroupsDeleted   prometheus.Counter
	CommandsFlushed prometheus.Counter
	ReplayErrors    prometheus.Counter
	ObserverCalls   *prometheus.CounterVec
	IterationTime   prometheus.Histogram
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueriesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ecs_queries_built_total",
			Help: "Total number of queries built",
		}),
		BuildFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ecs_query_build_failures_total",
			Help: "Total number of query construction errors",
		}),
		Batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ecs_batches_total",
			Help: "Matched batches resolved, by materialization path",
		}, []string{"path"}),
		Rows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ecs_rows_total",
			Help: "Total number of rows iterated",
		}),
		CacheRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ecs_query_cache_rebuilds_total",
			Help: "Total number of query cache rebuilds",
		}),
		GroupsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ecs_groups_created_total",
			Help: "Total number of query groups created",
		}),
		GroupsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ecs_groups_deleted_total",
			Help: "Total number of query groups deleted",
		}),
		CommandsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ecs_deferred_commands_total",
			Help: "Total number of deferred commands replayed",
		}),
		ReplayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ecs_replay_errors_total",
			Help: "Total number of deferred commands that failed on replay",
		}),
		ObserverCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ecs_observer_calls_total",
			Help: "Observer callbacks run, by event",
		}, []string{"event"}),
		IterationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ecs_query_iteration_seconds",
			Help:    "Query iteration latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.QueriesBuilt, m.BuildFailures, m.Batches, m.Rows,
			m.CacheRebuilds, m.GroupsCreated, m.GroupsDeleted,
			m.CommandsFlushed, m.ReplayErrors, m.ObserverCalls, m.IterationTime)
	}
	return m
}

// Handle updates the counters for an event
func (m *Metrics) Handle(event Event) {
	switch event.Name {
	case QueryBuilt:
		m.QueriesBuilt.Inc()
	case QueryBuildFailed:
		m.BuildFailures.Inc()
	case BatchResolved:
		m.Batches.WithLabelValues(str(event.Data["path"])).Inc()
	case QueryIterated:
		m.Rows.Add(float64(num(event.Data["rows"])))
		m.IterationTime.Observe(event.Latency.Seconds())
	case CacheRebuilt:
		m.CacheRebuilds.Inc()
	case GroupCreated:
		m.GroupsCreated.Inc()
	case GroupDeleted:
		m.GroupsDeleted.Inc()
	case DeferFlushed:
		m.CommandsFlushed.Add(float64(num(event.Data["commands"])))
	case ErrorReplay:
		m.ReplayErrors.Inc()
	case ObserverTriggered:
		m.ObserverCalls.WithLabelValues(str(event.Data["event"])).Inc()
	}
}
