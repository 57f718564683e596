package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"turbinelens/emissions"
)

// Registry holds all Prometheus metrics for the dashboard service
type Registry struct {
	registry *prometheus.Registry

	// Ingestion metrics
	Ingestions      *prometheus.CounterVec
	IngestedRecords prometheus.Counter

	// Analysis provider metrics
	ProviderDuration *prometheus.HistogramVec

	// Emission analytics
	MixComputations *prometheus.CounterVec

	// Notifications
	Notifications *prometheus.CounterVec
}

// NewRegistry creates a registry with every metric registered
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		Ingestions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbinelens_ingestions_total",
				Help: "Finished ingestions by outcome",
			},
			[]string{"outcome"},
		),

		IngestedRecords: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "turbinelens_ingested_records_total",
				Help: "Data rows of successfully completed ingestions",
			},
		),

		ProviderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turbinelens_provider_duration_seconds",
				Help:    "Duration of analysis provider calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "result"},
		),

		MixComputations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbinelens_mix_computations_total",
				Help: "Energy mix computations by resulting zone",
			},
			[]string{"zone"},
		),

		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turbinelens_notifications_total",
				Help: "Alert notifications by result",
			},
			[]string{"result"},
		),
	}

	r.registry.MustRegister(
		r.Ingestions,
		r.IngestedRecords,
		r.ProviderDuration,
		r.MixComputations,
		r.Notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// IngestionFinished records the outcome of one ingestion
func (r *Registry) IngestionFinished(outcome string, records int) {
	r.Ingestions.WithLabelValues(outcome).Inc()
	if records > 0 {
		r.IngestedRecords.Add(float64(records))
	}
}

// ObserveProvider records one analysis provider call
func (r *Registry) ObserveProvider(provider, result string, elapsed time.Duration) {
	r.ProviderDuration.WithLabelValues(provider, result).Observe(elapsed.Seconds())
}

// MixComputed records one mix computation
func (r *Registry) MixComputed(zone emissions.Zone) {
	r.MixComputations.WithLabelValues(strings.ToLower(zone.String())).Inc()
}

// NotificationSent records one notification attempt
func (r *Registry) NotificationSent(result string) {
	r.Notifications.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
