package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CheckoutMetrics counts checkout outcomes and the conflict retries the
// orchestrator performs before giving up.
type CheckoutMetrics struct {
	Outcomes        *prometheus.CounterVec
	ConflictRetries prometheus.Counter
}

func NewCheckoutMetrics(service string) *CheckoutMetrics {
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shop",
		Subsystem: service,
		Name:      "checkout_attempts_total",
		Help:      "Total number of checkout attempts by terminal outcome.",
	}, []string{"outcome"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shop",
		Subsystem: service,
		Name:      "checkout_conflict_retries_total",
		Help:      "Total number of checkout retries caused by lost stock races.",
	})

	prometheus.MustRegister(outcomes, retries)
	return &CheckoutMetrics{Outcomes: outcomes, ConflictRetries: retries}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
