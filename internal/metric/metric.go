// Package metric exposes dataagent's Prometheus metrics.
package metric

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/koustreak/dataagent/internal/errs"
)

const namespace = "dataagent"

// Metrics holds the collectors dataagent updates.
type Metrics struct {
	PipelineRequests *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec
	RegistryEntities prometheus.Gauge
	DiscoveryRuns    *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		PipelineRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "requests_total",
				Help:      "Query pipeline runs by path and outcome",
			},
			[]string{"path", "outcome"},
		),
		PipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "duration_seconds",
				Help:      "Wall-clock duration of query pipeline runs",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		RegistryEntities: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "entities",
				Help:      "Entities currently registered",
			},
		),
		DiscoveryRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "discovery",
				Name:      "runs_total",
				Help:      "Scope discoveries by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Registry owns a Prometheus registry with dataagent and runtime metrics.
type Registry struct {
	prom    *prometheus.Registry
	Metrics *Metrics
}

// NewRegistry creates a registry with every dataagent collector plus the
// Go and process collectors.
func NewRegistry() *Registry {
	r := &Registry{prom: prometheus.NewRegistry(), Metrics: NewMetrics()}
	r.prom.MustRegister(
		r.Metrics.PipelineRequests,
		r.Metrics.PipelineDuration,
		r.Metrics.RegistryEntities,
		r.Metrics.DiscoveryRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Prometheus returns the underlying registry.
func (r *Registry) Prometheus() *prometheus.Registry { return r.prom }

// Register adds an extra collector.
func (r *Registry) Register(c prometheus.Collector) error {
	if err := r.prom.Register(c); err != nil {
		var dup prometheus.AlreadyRegisteredError
		if errors.As(err, &dup) {
			return errs.Wrap(errs.ErrKindInvalidInput, "collector already registered", err)
		}
		return errs.Wrap(errs.ErrKindUnknown, "cannot register collector", err)
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{Registry: r.prom})
}

// ObservePipeline records one query pipeline run.
func (r *Registry) ObservePipeline(path, outcome string, elapsed time.Duration) {
	r.Metrics.PipelineRequests.WithLabelValues(path, outcome).Inc()
	r.Metrics.PipelineDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

// EntitiesRegistered tracks the registry size.
func (r *Registry) EntitiesRegistered(n int) {
	r.Metrics.RegistryEntities.Set(float64(n))
}

// ObserveDiscovery counts one scope discovery.
func (r *Registry) ObserveDiscovery(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.Metrics.DiscoveryRuns.WithLabelValues(outcome).Inc()
}
