package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ClientsCreated  prometheus.Counter
	Mutations       *prometheus.CounterVec
	AuditEntries    prometheus.Counter
	ExportRequests  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates all metrics and registers them on the given registerer. Tests
// pass a fresh prometheus.NewRegistry so suites never collide on registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ClientsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "padron_clients_created_total",
			Help: "Total number of clients created in the system",
		}),
		Mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "padron_mutations_total",
			Help: "Total number of committed mutations, labeled by audit action",
		}, []string{"action"}),
		AuditEntries: factory.NewCounter(prometheus.CounterOpts{
			Name: "padron_audit_entries_total",
			Help: "Total number of audit entries written",
		}),
		ExportRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "padron_export_requests_total",
			Help: "Total number of export requests, labeled by format",
		}, []string{"format"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "padron_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// ObserveRequest records one HTTP request's latency.
func (m *Metrics) ObserveRequest(method, path string, d time.Duration) {
	m.RequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// IncrementMutation counts one committed pipeline mutation.
func (m *Metrics) IncrementMutation(action string) {
	m.Mutations.WithLabelValues(action).Inc()
	m.AuditEntries.Inc()
}
