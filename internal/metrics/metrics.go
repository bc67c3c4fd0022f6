// Package metrics exposes authorization flow counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface the auth handlers use.
type Recorder interface {
	AuthStarted(provider, transport string)
	AuthCompleted(provider string)
	AuthFailed(reason string)
	ProviderRequest(provider, stage string, d time.Duration)
}

// Collector records flow metrics on a Prometheus registry.
type Collector struct {
	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// NewCollector creates the collectors and registers them on reg.
// Panics if called twice against the same registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tether_auth_started_total",
			Help: "Authorization flows started.",
		}, []string{"provider", "transport"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tether_auth_completed_total",
			Help: "Authorization flows that delivered a profile.",
		}, []string{"provider"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tether_auth_failed_total",
			Help: "Authorization flows that ended in an error, by reason.",
		}, []string{"reason"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tether_provider_request_seconds",
			Help:    "Latency of outbound provider calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "stage"}),
	}

	reg.MustRegister(c.started, c.completed, c.failed, c.latency)
	return c
}

func (c *Collector) AuthStarted(provider, transport string) {
	c.started.WithLabelValues(provider, transport).Inc()
}

func (c *Collector) AuthCompleted(provider string) {
	c.completed.WithLabelValues(provider).Inc()
}

func (c *Collector) AuthFailed(reason string) {
	c.failed.WithLabelValues(reason).Inc()
}

// ProviderRequest observes one outbound call. stage is "request_token", "exchange" or "profile".
func (c *Collector) ProviderRequest(provider, stage string, d time.Duration) {
	c.latency.WithLabelValues(provider, stage).Observe(d.Seconds())
}

// Nop discards everything.
type Nop struct{}

func (Nop) AuthStarted(string, string)                    {}
func (Nop) AuthCompleted(string)                          {}
func (Nop) AuthFailed(string)                             {}
func (Nop) ProviderRequest(string, string, time.Duration) {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
