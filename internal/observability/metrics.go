package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsClient is the narrow metrics surface the core components need:
// counters for discrete events and gauges for point-in-time levels. Nothing
// in this package depends on a running collector — NewNoopMetricsClient is the
// zero-cost default and PrometheusMetricsClient is wired in only by
// cmd/storyserver.
type MetricsClient interface {
	IncrCounter(name string, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

type noopMetrics struct{}

// NewNoopMetricsClient returns a MetricsClient that does nothing.
func NewNoopMetricsClient() MetricsClient { return noopMetrics{} }

func (noopMetrics) IncrCounter(string, map[string]string)            {}
func (noopMetrics) SetGauge(string, float64, map[string]string)      {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}

// PrometheusMetricsClient lazily registers a counter/gauge/histogram vector
// per metric name, keyed by the label names observed on first use.
type PrometheusMetricsClient struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetricsClient creates a client that registers its vectors
// against reg (pass prometheus.DefaultRegisterer in production).
func NewPrometheusMetricsClient(reg prometheus.Registerer) *PrometheusMetricsClient {
	return &PrometheusMetricsClient{
		registerer: reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

func (p *PrometheusMetricsClient) IncrCounter(name string, labels map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.counters[name]
	if !ok {
		c = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelNames(labels))
		p.registerer.MustRegister(c)
		p.counters[name] = c
	}
	c.With(labels).Inc()
}

func (p *PrometheusMetricsClient) SetGauge(name string, value float64, labels map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	g, ok := p.gauges[name]
	if !ok {
		g = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labelNames(labels))
		p.registerer.MustRegister(g)
		p.gauges[name] = g
	}
	g.With(labels).Set(value)
}

func (p *PrometheusMetricsClient) ObserveHistogram(name string, value float64, labels map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.histograms[name]
	if !ok {
		h = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name}, labelNames(labels))
		p.registerer.MustRegister(h)
		p.histograms[name] = h
	}
	h.With(labels).Observe(value)
}
