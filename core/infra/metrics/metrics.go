package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncMetrics counts reconciliation fan-out and ledger activity.
type SyncMetrics interface {
	IncSyncEnqueued(kind string)
	IncSyncProcessed(kind, status string)
	IncLedgerWrites(outcome string)
}

// GatewayMetrics captures request metrics for the policy gateway.
type GatewayMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements SyncMetrics and GatewayMetrics without emitting anything.
type Noop struct{}

func (Noop) IncSyncEnqueued(string)                         {}
func (Noop) IncSyncProcessed(string, string)                {}
func (Noop) IncLedgerWrites(string)                         {}
func (Noop) ObserveRequest(string, string, string, float64) {}

// Prom implements the metric interfaces backed by Prometheus collectors.
type Prom struct {
	syncEnqueued  *prometheus.CounterVec
	syncProcessed *prometheus.CounterVec
	ledgerWrites  *prometheus.CounterVec
	requests      *prometheus.HistogramVec
	registry      *prometheus.Registry
}

// NewProm constructs collectors under the given namespace and registers them
// on a private registry.
func NewProm(namespace string) *Prom {
	p := &Prom{
		syncEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_jobs_enqueued_total",
			Help:      "Reconciliation jobs enqueued by kind",
		}, []string{"kind"}),
		syncProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_jobs_processed_total",
			Help:      "Reconciliation jobs processed by kind and status",
		}, []string{"kind", "status"}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violation_ledger_writes_total",
			Help:      "Violation ledger replacements by outcome",
		}, []string{"outcome"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Gateway request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		registry: prometheus.NewRegistry(),
	}
	p.registry.MustRegister(p.syncEnqueued, p.syncProcessed, p.ledgerWrites, p.requests)
	return p
}

func (p *Prom) IncSyncEnqueued(kind string) {
	p.syncEnqueued.WithLabelValues(kind).Inc()
}

func (p *Prom) IncSyncProcessed(kind, status string) {
	p.syncProcessed.WithLabelValues(kind, status).Inc()
}

func (p *Prom) IncLedgerWrites(outcome string) {
	p.ledgerWrites.WithLabelValues(outcome).Inc()
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Observe(durationSeconds)
}

// Handler exposes the registry for a /metrics endpoint.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
