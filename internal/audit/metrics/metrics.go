package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit module: append throughput,
// verification outcomes, and export volume.
type Metrics struct {
	EntriesAppended      prometheus.Counter
	AppendFailures       prometheus.Counter
	AppendDuration       prometheus.Histogram
	VerificationsRun     prometheus.Counter
	VerificationFailures prometheus.Counter
	ExportsGenerated     *prometheus.CounterVec
	PublishDropped       prometheus.Counter
}

// New creates a Metrics instance with all audit metrics registered on the
// default registry.
func New() *Metrics {
	return &Metrics{
		EntriesAppended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_entries_appended_total",
			Help: "Total number of audit entries sealed and persisted",
		}),
		AppendFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_append_failures_total",
			Help: "Total number of audit appends that failed and were rolled back",
		}),
		AppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veritrail_append_duration_seconds",
			Help:    "Duration of AddEntry (hash, tree rebuild, persist)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		VerificationsRun: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_verifications_total",
			Help: "Total number of entry or trail verifications executed",
		}),
		VerificationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_verification_failures_total",
			Help: "Total number of verifications that detected tampering",
		}),
		ExportsGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritrail_exports_generated_total",
			Help: "Total number of trail exports by format",
		}, []string{"format"}),
		PublishDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_publish_dropped_total",
			Help: "Total number of entries dropped by the async publisher buffer",
		}),
	}
}

// ObserveAppend records the duration of a completed AddEntry.
// Call with time.Now() captured at the start of the operation.
func (m *Metrics) ObserveAppend(start time.Time) {
	m.AppendDuration.Observe(time.Since(start).Seconds())
}
