// Package metrics exposes region activity as prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records region writes and scans. It satisfies region.Observer.
type Collector struct {
	Writes       *prometheus.CounterVec
	Scans        prometheus.Counter
	Records      prometheus.Gauge
	ScanDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netspy",
			Subsystem: "region",
			Name:      "writes_total",
			Help:      "Records written to the region, by slot.",
		}, []string{"slot"}),
		Scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netspy",
			Subsystem: "region",
			Name:      "scans_total",
			Help:      "Full region scans.",
		}),
		Records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "netspy",
			Subsystem: "region",
			Name:      "records",
			Help:      "Non-empty slots seen by the last scan.",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "netspy",
			Subsystem: "region",
			Name:      "scan_duration_seconds",
			Help:      "Time spent scanning the region, lock wait included.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 10),
		}),
		gatherer: reg,
	}
	reg.MustRegister(c.Writes, c.Scans, c.Records, c.ScanDuration)
	return c
}

// ObserveWrite counts one write to slot.
func (c *Collector) ObserveWrite(slot int) {
	c.Writes.WithLabelValues(strconv.Itoa(slot)).Inc()
}

// ObserveScan records one scan and the number of records it returned.
func (c *Collector) ObserveScan(records int, elapsed time.Duration) {
	c.Scans.Inc()
	c.Records.Set(float64(records))
	c.ScanDuration.Observe(elapsed.Seconds())
}

// Handler serves the collectors in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the registry backing the collectors.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.gatherer
}
