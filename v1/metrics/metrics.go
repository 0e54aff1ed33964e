package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AcquireCounter tracks successful lock acquisitions.
	AcquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessionlock_acquire_total",
		Help: "Total number of successful lock acquisitions",
	})
	// AcquireFailureCounter tracks acquisitions that failed or lost the race.
	AcquireFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessionlock_acquire_failures_total",
		Help: "Total number of failed lock acquisitions",
	})
	// ReleaseCounter tracks lock releases.
	ReleaseCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessionlock_release_total",
		Help: "Total number of lock releases",
	})
	// RenewalCounter tracks successful session renewals.
	RenewalCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessionlock_renewals_total",
		Help: "Total number of successful session renewals",
	})
	// RenewalFailureCounter tracks renewals that failed, leaving the lease at
	// risk of expiry.
	RenewalFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessionlock_renewal_failures_total",
		Help: "Total number of failed session renewals",
	})
	// HeldGauge reports the number of locks currently held by this process.
	HeldGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessionlock_held_locks",
		Help: "Current number of held locks",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterLockMetrics registers sessionlock metrics on the provided registry.
func RegisterLockMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AcquireCounter, AcquireFailureCounter, ReleaseCounter,
		RenewalCounter, RenewalFailureCounter, HeldGauge)
}
