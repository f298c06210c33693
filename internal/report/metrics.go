package report

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MeKo-Tech/hashprobe/internal/evaluate"
)

// Metrics holds the run's Prometheus collectors on a private registry, so
// several runs in one process never collide.
type Metrics struct {
	registry        *prometheus.Registry
	batchesTotal    prometheus.Counter
	imagesTotal     prometheus.Counter
	forwardDuration prometheus.Histogram
	meanAP          *prometheus.GaugeVec
}

var _ evaluate.Observer = (*Metrics)(nil)

// NewMetrics registers the evaluation collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hashprobe_batches_total",
			Help: "Total number of evaluated batches",
		}),
		imagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hashprobe_images_total",
			Help: "Total number of evaluated images",
		}),
		forwardDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hashprobe_forward_duration_seconds",
			Help:    "Network forward time per batch, clean and perturbed passes combined",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		meanAP: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hashprobe_map",
			Help: "Top-k mean average precision",
		}, []string{"model", "mode", "kind"}), // kind: clean, perturbed
	}
	m.registry.MustRegister(m.batchesTotal, m.imagesTotal, m.forwardDuration, m.meanAP)
	return m
}

// ObserveBatch implements evaluate.Observer.
func (m *Metrics) ObserveBatch(images int, forward time.Duration) {
	m.batchesTotal.Inc()
	m.imagesTotal.Add(float64(images))
	m.forwardDuration.Observe(forward.Seconds())
}

// RecordMAP sets both mAP gauges for a (model, mode) pair.
func (m *Metrics) RecordMAP(model string, mode int, clean, perturbed float64) {
	id := strconv.Itoa(mode)
	m.meanAP.WithLabelValues(model, id, "clean").Set(clean)
	m.meanAP.WithLabelValues(model, id, "perturbed").Set(perturbed)
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes all metrics in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
