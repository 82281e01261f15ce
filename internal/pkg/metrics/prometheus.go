package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scan metrics
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tagaudit",
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of scan runs",
		},
		[]string{"provider", "status"},
	)

	scanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tagaudit",
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Duration of a full scan run in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"provider"},
	)

	resourcesScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tagaudit",
			Subsystem: "scan",
			Name:      "resources_total",
			Help:      "Total number of resources evaluated",
		},
		[]string{"provider", "status"},
	)

	accountsScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tagaudit",
			Subsystem: "scan",
			Name:      "accounts_total",
			Help:      "Total number of accounts enumerated",
		},
		[]string{"provider", "status"},
	)

	// Remediation metrics
	remediationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tagaudit",
			Subsystem: "remediation",
			Name:      "attempts_total",
			Help:      "Total number of tag write attempts",
		},
		[]string{"outcome"},
	)

	remediationRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tagaudit",
			Subsystem: "remediation",
			Name:      "retries_total",
			Help:      "Total number of retried tag writes after transient faults",
		},
	)

	// Compliance gauges, refreshed after each run
	complianceRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tagaudit",
			Subsystem: "report",
			Name:      "compliance_rate",
			Help:      "Compliance rate of the most recent run as a percentage",
		},
		[]string{"provider"},
	)

	nonCompliantResources = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tagaudit",
			Subsystem: "report",
			Name:      "non_compliant_count",
			Help:      "Non-compliant resources in the most recent run",
		},
		[]string{"provider"},
	)
)

// RecordScan records the outcome and duration of a scan run
func RecordScan(provider, status string, duration time.Duration) {
	scansTotal.WithLabelValues(provider, status).Inc()
	scanDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordResource records an evaluated resource by verdict
func RecordResource(provider, status string) {
	resourcesScanned.WithLabelValues(provider, status).Inc()
}

// RecordAccount records an enumerated account by outcome
func RecordAccount(provider, status string) {
	accountsScanned.WithLabelValues(provider, status).Inc()
}

// RecordRemediationAttempt records a tag write attempt outcome
func RecordRemediationAttempt(outcome string) {
	remediationAttempts.WithLabelValues(outcome).Inc()
}

// RecordRemediationRetry records a retried tag write
func RecordRemediationRetry() {
	remediationRetries.Inc()
}

// SetComplianceRate sets the latest-run compliance rate gauge
func SetComplianceRate(provider string, rate float64) {
	complianceRate.WithLabelValues(provider).Set(rate)
}

// SetNonCompliantCount sets the latest-run non-compliant gauge
func SetNonCompliantCount(provider string, count float64) {
	nonCompliantResources.WithLabelValues(provider).Set(count)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
