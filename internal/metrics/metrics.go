package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/STRATINT/eventcurator/internal/models"
)

const namespace = "eventcurator"

// RunCollector exposes Prometheus metrics for curator runs.
type RunCollector struct {
	registry         *prometheus.Registry
	sourcesTotal     *prometheus.CounterVec
	candidatesTotal  *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
	archivedTotal    prometheus.Counter
	collectionSize   *prometheus.GaugeVec
	runDuration      prometheus.Histogram
}

// NewRunCollector constructs a collector on a private registry.
func NewRunCollector() (*RunCollector, error) {
	registry := prometheus.NewRegistry()

	c := &RunCollector{
		registry: registry,
		sourcesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_total",
			Help:      "Sources attempted by scrape runs, by outcome.",
		}, []string{"outcome"}),
		candidatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Candidates seen by scrape runs, by pipeline stage.",
		}, []string{"stage"}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Extraction requests per AI provider, by outcome.",
		}, []string{"provider", "outcome"}),
		archivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archived_total",
			Help:      "Events moved into archive partitions.",
		}),
		collectionSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collection_size",
			Help:      "Number of events per status collection.",
		}, []string{"collection"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of curator commands.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
	}

	for _, collector := range []prometheus.Collector{
		c.sourcesTotal,
		c.candidatesTotal,
		c.providerRequests,
		c.archivedTotal,
		c.collectionSize,
		c.runDuration,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *RunCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the current metrics in the text exposition format,
// suitable for the node exporter textfile collector.
func (c *RunCollector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

// ProviderRequest counts one provider request. It satisfies
// enrichment.Observer.
func (c *RunCollector) ProviderRequest(provider, outcome string) {
	c.providerRequests.WithLabelValues(provider, outcome).Inc()
}

// Sources adds n sources with the given outcome (succeeded, failed).
func (c *RunCollector) Sources(outcome string, n int) {
	c.sourcesTotal.WithLabelValues(outcome).Add(float64(n))
}

// Candidates adds n candidates at a pipeline stage (fetched, valid,
// invalid, filtered, new, merged, auto_rejected).
func (c *RunCollector) Candidates(stage string, n int) {
	c.candidatesTotal.WithLabelValues(stage).Add(float64(n))
}

// Archived adds n archived events.
func (c *RunCollector) Archived(n int) {
	c.archivedTotal.Add(float64(n))
}

// CollectionSizes sets the collection gauges.
func (c *RunCollector) CollectionSizes(sizes map[models.EventStatus]int) {
	for status, n := range sizes {
		c.collectionSize.WithLabelValues(string(status)).Set(float64(n))
	}
}

// ObserveRun records the duration of one command.
func (c *RunCollector) ObserveRun(d time.Duration) {
	c.runDuration.Observe(d.Seconds())
}
