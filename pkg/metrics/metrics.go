package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Dispatcher metrics
	CycleDuration      prometheus.Histogram
	EntriesDelivered   *prometheus.CounterVec
	EntriesFailed      *prometheus.CounterVec
	EntriesMissed      prometheus.Counter
	DeliveryRetries    *prometheus.CounterVec
	ClaimConflicts     prometheus.Counter
	PendingBacklog     prometheus.Gauge

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_cycle_duration_seconds",
			Help:      "Time spent running a dispatch cycle",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		EntriesDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_delivered_total",
			Help:      "Total number of schedule entries delivered",
		}, []string{"platform"}),
		EntriesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_failed_total",
			Help:      "Total number of schedule entries that exhausted delivery",
		}, []string{"platform"}),
		EntriesMissed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_missed_total",
			Help:      "Total number of schedule entries that missed their delivery window",
		}),
		DeliveryRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_retry_attempts_total",
			Help:      "Total number of transient delivery failures left for retry",
		}, []string{"platform"}),
		ClaimConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_conflicts_total",
			Help:      "Total number of entries lost to a concurrent dispatcher claim",
		}),
		PendingBacklog: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_backlog",
			Help:      "Current number of pending schedule entries",
		}),
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}

// New creates an unregistered metrics set, useful in tests where the
// default registry must stay clean.
func New(namespace string) *Metrics {
	return &Metrics{
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_cycle_duration_seconds",
			Help:      "Time spent running a dispatch cycle",
		}),
		EntriesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_delivered_total",
			Help:      "Total number of schedule entries delivered",
		}, []string{"platform"}),
		EntriesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_failed_total",
			Help:      "Total number of schedule entries that exhausted delivery",
		}, []string{"platform"}),
		EntriesMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_missed_total",
			Help:      "Total number of schedule entries that missed their delivery window",
		}),
		DeliveryRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_retry_attempts_total",
			Help:      "Total number of transient delivery failures left for retry",
		}, []string{"platform"}),
		ClaimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_conflicts_total",
			Help:      "Total number of entries lost to a concurrent dispatcher claim",
		}),
		PendingBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_backlog",
			Help:      "Current number of pending schedule entries",
		}),
		DatabaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}
