package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	VerificationsIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "filegate",
		Name:      "verifications_issued_total",
		Help:      "Total verification links issued.",
	})

	RedemptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filegate",
		Name:      "redemptions_total",
		Help:      "Total redemption attempts, by outcome.",
	}, []string{"outcome"})

	ShortenerRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filegate",
		Name:      "shortener_requests_total",
		Help:      "Shortener calls, by result. Fallback means the raw redemption URL was returned.",
	}, []string{"provider", "result"})

	SubscriptionChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filegate",
		Name:      "subscription_checks_total",
		Help:      "Force-subscription checks, by result.",
	}, []string{"result"})

	QuotaDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filegate",
		Name:      "quota_decisions_total",
		Help:      "Download quota decisions, by result.",
	}, []string{"result"})

	EventsConsumedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "filegate",
		Name:      "events_consumed_total",
		Help:      "Consumed events, by topic and result: handled, dropped or retried.",
	}, []string{"topic", "result"})
)

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		VerificationsIssuedTotal,
		RedemptionsTotal,
		ShortenerRequestsTotal,
		SubscriptionChecksTotal,
		QuotaDecisionsTotal,
		EventsConsumedTotal,
	)
}

// NewRegistry returns a registry holding the process, Go runtime and engine collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	Register(reg)

	return reg
}

// Handler exposes reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
