// Package observability provides Prometheus metrics and the health/metrics HTTP endpoint.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "ledger"

// Drop reasons for ListenerEventsDropped.
const (
	DropQueueFull    = "queue_full"
	DropMalformed    = "malformed"
	DropUntracked    = "untracked_mint"
	DropWriterFailed = "writer_failed"
)

// Metrics holds all Prometheus metrics for the ledger.
// All Record/Observe helpers are safe on a nil *Metrics.
type Metrics struct {
	// Accounting metrics
	TradesIndexed prometheus.Counter
	IndexingLag   prometheus.Histogram

	// Listener metrics
	ListenerEventsReceived prometheus.Counter
	ListenerEventsDropped  *prometheus.CounterVec
	QueueDepth             prometheus.Gauge
	PositionsSynced        prometheus.Counter
	PositionDivergences    prometheus.Counter
	WriterErrors           *prometheus.CounterVec

	// Backfill metrics
	BackfillSignatures   prometheus.Counter
	BackfillMintFailures prometheus.Counter
	CheckpointSlot       prometheus.Gauge

	// Chain metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCRetries     *prometheus.CounterVec
	RPCErrors      *prometheus.CounterVec

	// Registry metrics
	TrackedMints          prometheus.Gauge
	RegistryRefreshErrors prometheus.Counter

	// Reconciliation metrics
	RevenueSnapshots *prometheus.CounterVec
	AlertsSent       *prometheus.CounterVec

	// Scheduler metrics
	TaskRuns     *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec

	// Health metrics
	LastEventTimestamp prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on reg.
// A nil reg registers on prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		TradesIndexed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_indexed_total",
			Help:      "Total number of trades recorded in the ledger",
		}),
		IndexingLag: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "indexing_lag_seconds",
			Help:      "Delay between trade timestamp and ledger commit",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 300, 900, 3600},
		}),

		ListenerEventsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "events_received_total",
			Help:      "Total number of token account notifications received",
		}),
		ListenerEventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "events_dropped_total",
			Help:      "Total number of token account notifications dropped by reason",
		}, []string{"reason"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "listener",
			Name:      "queue_depth",
			Help:      "Current number of events waiting for the writer",
		}),
		PositionsSynced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "positions_synced_total",
			Help:      "Total number of observed position amounts overwritten from chain state",
		}),
		PositionDivergences: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "position_divergences_total",
			Help:      "Total number of syncs where the on-chain balance differs from the trade-ledger amount",
		}),
		WriterErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "errors_total",
			Help:      "Total number of writer failures by stage",
		}, []string{"stage"}),

		BackfillSignatures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "signatures_processed_total",
			Help:      "Total number of signatures replayed by the backfill",
		}),
		BackfillMintFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "mint_failures_total",
			Help:      "Total number of mints whose backfill stopped on error",
		}),
		CheckpointSlot: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "checkpoint_slot",
			Help:      "Slot of the last persisted checkpoint",
		}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds, including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_retries_total",
			Help:      "Total number of retried Solana RPC attempts",
		}, []string{"method"}),
		RPCErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_errors_total",
			Help:      "Total number of Solana RPC calls that failed after retries",
		}, []string{"method"}),

		TrackedMints: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "tracked_mints",
			Help:      "Number of mints currently tracked",
		}),
		RegistryRefreshErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "refresh_errors_total",
			Help:      "Total number of failed registry refreshes",
		}),

		RevenueSnapshots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "snapshots_total",
			Help:      "Total number of revenue snapshots by status",
		}, []string{"status"}),
		AlertsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "alerts_total",
			Help:      "Total number of alerts sent by title",
		}, []string{"title"}),

		TaskRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "task_runs_total",
			Help:      "Total number of periodic task runs by outcome",
		}, []string{"task", "outcome"}),
		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "task_duration_seconds",
			Help:      "Periodic task duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}, []string{"task"}),

		LastEventTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_timestamp",
			Help:      "Unix timestamp of the last processed chain event",
		}),
	}
}

// RecordTradeIndexed counts a committed trade and observes its lag.
func (m *Metrics) RecordTradeIndexed(tradeTime, now time.Time) {
	if m == nil {
		return
	}
	m.TradesIndexed.Inc()
	if lag := now.Sub(tradeTime).Seconds(); lag >= 0 {
		m.IndexingLag.Observe(lag)
	}
}

// RecordEventReceived counts a listener notification.
func (m *Metrics) RecordEventReceived() {
	if m == nil {
		return
	}
	m.ListenerEventsReceived.Inc()
	m.LastEventTimestamp.SetToCurrentTime()
}

// RecordEventDropped counts a dropped listener notification.
func (m *Metrics) RecordEventDropped(reason string) {
	if m == nil {
		return
	}
	m.ListenerEventsDropped.WithLabelValues(reason).Inc()
}

// SetQueueDepth updates the queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// RecordPositionDivergence counts a sync whose observed balance disagrees with the lot.
func (m *Metrics) RecordPositionDivergence() {
	if m == nil {
		return
	}
	m.PositionDivergences.Inc()
}

// RecordPositionSynced counts a chain-sourced amount overwrite.
func (m *Metrics) RecordPositionSynced() {
	if m == nil {
		return
	}
	m.PositionsSynced.Inc()
}

// RecordWriterError counts a writer failure at stage.
func (m *Metrics) RecordWriterError(stage string) {
	if m == nil {
		return
	}
	m.WriterErrors.WithLabelValues(stage).Inc()
}

// RecordBackfillSignature counts a replayed signature and the new checkpoint slot.
func (m *Metrics) RecordBackfillSignature(slot int64) {
	if m == nil {
		return
	}
	m.BackfillSignatures.Inc()
	m.CheckpointSlot.Set(float64(slot))
}

// RecordBackfillMintFailure counts a mint whose backfill stopped.
func (m *Metrics) RecordBackfillMintFailure() {
	if m == nil {
		return
	}
	m.BackfillMintFailures.Inc()
}

// RecordRPCCall observes an RPC call and its retry count.
func (m *Metrics) RecordRPCCall(method string, d time.Duration, retries int, err error) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
	if retries > 0 {
		m.RPCRetries.WithLabelValues(method).Add(float64(retries))
	}
	if err != nil {
		m.RPCErrors.WithLabelValues(method).Inc()
	}
}

// SetTrackedMints updates the tracked mint gauge.
func (m *Metrics) SetTrackedMints(n int) {
	if m == nil {
		return
	}
	m.TrackedMints.Set(float64(n))
}

// RecordRegistryRefreshError counts a failed registry refresh.
func (m *Metrics) RecordRegistryRefreshError() {
	if m == nil {
		return
	}
	m.RegistryRefreshErrors.Inc()
}

// RecordRevenueSnapshot counts a revenue snapshot by status.
func (m *Metrics) RecordRevenueSnapshot(status string) {
	if m == nil {
		return
	}
	m.RevenueSnapshots.WithLabelValues(status).Inc()
}

// RecordAlert counts a sent alert.
func (m *Metrics) RecordAlert(title string) {
	if m == nil {
		return
	}
	m.AlertsSent.WithLabelValues(title).Inc()
}

// RecordTaskRun observes a periodic task run.
func (m *Metrics) RecordTaskRun(task, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TaskRuns.WithLabelValues(task, outcome).Inc()
	m.TaskDuration.WithLabelValues(task).Observe(d.Seconds())
}
