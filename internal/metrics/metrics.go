// Package metrics holds the Prometheus collectors for a scrape run.
// All methods are safe on a nil *Collector so components run without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	LinksCollected     prometheus.Counter
	ProductsAttempted  prometheus.Counter
	ProductsExtracted  prometheus.Counter
	ProductsDropped    prometheus.Counter
	NavigationFailures prometheus.Counter
	SessionRecycles    prometheus.Counter
	Verifications      *prometheus.CounterVec
	StageFaults        *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	SinkWrites         *prometheus.CounterVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		LinksCollected: f.NewCounter(prometheus.CounterOpts{
			Name: "catalog_links_collected_total",
			Help: "Product detail addresses collected from listing pages.",
		}),
		ProductsAttempted: f.NewCounter(prometheus.CounterOpts{
			Name: "catalog_products_attempted_total",
			Help: "Product detail pages opened.",
		}),
		ProductsExtracted: f.NewCounter(prometheus.CounterOpts{
			Name: "catalog_products_extracted_total",
			Help: "Records that passed the mandatory-field gate.",
		}),
		ProductsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "catalog_products_dropped_total",
			Help: "Records discarded for missing mandatory fields.",
		}),
		NavigationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "catalog_navigation_failures_total",
			Help: "Product addresses that failed to load.",
		}),
		SessionRecycles: f.NewCounter(prometheus.CounterOpts{
			Name: "catalog_session_recycles_total",
			Help: "Browser sessions replaced during the run.",
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_verifications_total",
			Help: "Label verifications by match method.",
		}, []string{"method"}),
		StageFaults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_stage_faults_total",
			Help: "Extraction stage faults by stage.",
		}, []string{"stage"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_stage_duration_seconds",
			Help:    "Duration of extraction stages.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		SinkWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_sink_writes_total",
			Help: "Sink flushes by sink and status.",
		}, []string{"sink", "status"}),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the run's registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) IncLinks(n int) {
	if c == nil {
		return
	}
	c.LinksCollected.Add(float64(n))
}

func (c *Collector) IncAttempted() {
	if c == nil {
		return
	}
	c.ProductsAttempted.Inc()
}

func (c *Collector) IncExtracted() {
	if c == nil {
		return
	}
	c.ProductsExtracted.Inc()
}

func (c *Collector) IncDropped() {
	if c == nil {
		return
	}
	c.ProductsDropped.Inc()
}

func (c *Collector) IncNavigationFailure() {
	if c == nil {
		return
	}
	c.NavigationFailures.Inc()
}

func (c *Collector) IncRecycle() {
	if c == nil {
		return
	}
	c.SessionRecycles.Inc()
}

func (c *Collector) ObserveVerification(method string) {
	if c == nil {
		return
	}
	c.Verifications.WithLabelValues(method).Inc()
}

func (c *Collector) StageFault(stage string) {
	if c == nil {
		return
	}
	c.StageFaults.WithLabelValues(stage).Inc()
}

func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (c *Collector) SinkWrite(sink string, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.SinkWrites.WithLabelValues(sink, status).Inc()
}
