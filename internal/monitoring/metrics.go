package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the proxy's Prometheus metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	feesCollected     *prometheus.CounterVec
	paymentsRejected  *prometheus.CounterVec
	vaultCallDuration *prometheus.HistogramVec
	configUpdates     prometheus.Counter
	adminCount        prometheus.Gauge
}

// New creates the metrics set under the given namespace.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		feesCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_collected_total",
			Help:      "Number of settled fee collections by entry point",
		}, []string{"operation"}),

		paymentsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_rejected_total",
			Help:      "Number of rejected payments by reason",
		}, []string{"reason"}),

		vaultCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vault_call_duration_seconds",
			Help:      "Duration of forwarded vault calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		configUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_updates_total",
			Help:      "Number of successful fee configuration mutations",
		}),

		adminCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admin_count",
			Help:      "Current size of the admin registry",
		}),
	}

	m.registry.MustRegister(
		m.feesCollected,
		m.paymentsRejected,
		m.vaultCallDuration,
		m.configUpdates,
		m.adminCount,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FeeCollected counts one settled fee for an entry point.
func (m *Metrics) FeeCollected(operation string) {
	if m == nil {
		return
	}
	m.feesCollected.WithLabelValues(operation).Inc()
}

// PaymentRejected counts one rejected payment.
func (m *Metrics) PaymentRejected(reason string) {
	if m == nil {
		return
	}
	m.paymentsRejected.WithLabelValues(reason).Inc()
}

// ObserveVaultCall records the duration of a forwarded vault call.
func (m *Metrics) ObserveVaultCall(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.vaultCallDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ConfigUpdated counts one successful configuration mutation.
func (m *Metrics) ConfigUpdated() {
	if m == nil {
		return
	}
	m.configUpdates.Inc()
}

// SetAdminCount records the current admin registry size.
func (m *Metrics) SetAdminCount(n int) {
	if m == nil {
		return
	}
	m.adminCount.Set(float64(n))
}
