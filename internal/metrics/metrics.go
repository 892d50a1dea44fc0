// Package metrics collects and exposes Prometheus metrics for ringbuf.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Frame kinds used as the "kind" label of ringbuf_frames_total.
const (
	FrameComplete = "complete"
	FrameOversize = "oversize"
	FramePartial  = "partial"
)

// Collector holds all ringbuf-specific Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	// Buffer occupancy.
	BufferCapacity prometheus.Gauge
	BufferUsed     prometheus.Gauge

	// Byte flow through the pipeline.
	BytesIn          prometheus.Counter
	BytesDropped     prometheus.Counter
	BytesOverwritten prometheus.Counter

	FramesTotal    *prometheus.CounterVec
	ResyncTotal    *prometheus.CounterVec
	PipelineUptime prometheus.Gauge
	BuildInfo      *prometheus.GaugeVec
}

// New creates and registers all ringbuf metrics.
func New() *Collector {
	reg := prometheus.NewRegistry()

	// Register default Go runtime metrics.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Collector{
		registry: reg,

		BufferCapacity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ringbuf_buffer_capacity_bytes",
				Help: "Capacity of the staging ring in bytes.",
			},
		),

		BufferUsed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ringbuf_buffer_used_bytes",
				Help: "Bytes currently held in the staging ring.",
			},
		),

		BytesIn: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ringbuf_bytes_in_total",
				Help: "Total bytes read from the source.",
			},
		),

		BytesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ringbuf_bytes_dropped_total",
				Help: "Total incoming bytes discarded because the ring was full.",
			},
		),

		BytesOverwritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ringbuf_bytes_overwritten_total",
				Help: "Total stored bytes evicted by overwriting writes.",
			},
		),

		FramesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ringbuf_frames_total",
				Help: "Total frames emitted, by kind.",
			},
			[]string{"kind"},
		),

		ResyncTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ringbuf_resync_total",
				Help: "Total cursor resynchronizations, by result.",
			},
			[]string{"result"},
		),

		PipelineUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ringbuf_pipeline_uptime_seconds",
				Help: "Uptime of the ingest pipeline in seconds.",
			},
		),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ringbuf_info",
				Help: "Build information about ringbuf.",
			},
			[]string{"version", "go_version"},
		),
	}

	reg.MustRegister(
		c.BufferCapacity,
		c.BufferUsed,
		c.BytesIn,
		c.BytesDropped,
		c.BytesOverwritten,
		c.FramesTotal,
		c.ResyncTotal,
		c.PipelineUptime,
		c.BuildInfo,
	)

	return c
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetBuildInfo sets the constant build info gauge.
func (c *Collector) SetBuildInfo(version, goVersion string) {
	c.BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// SetBuffer records the ring occupancy.
func (c *Collector) SetBuffer(used, capacity int) {
	c.BufferUsed.Set(float64(used))
	c.BufferCapacity.Set(float64(capacity))
}

// AddBytesIn counts bytes read from the source.
func (c *Collector) AddBytesIn(n int) {
	c.BytesIn.Add(float64(n))
}

// AddDropped counts bytes a bounded write could not store.
func (c *Collector) AddDropped(n int) {
	if n > 0 {
		c.BytesDropped.Add(float64(n))
	}
}

// AddOverwritten counts bytes evicted by an overwriting write.
func (c *Collector) AddOverwritten(n int) {
	if n > 0 {
		c.BytesOverwritten.Add(float64(n))
	}
}

// IncFrame increments the frame counter for kind.
func (c *Collector) IncFrame(kind string) {
	c.FramesTotal.WithLabelValues(kind).Inc()
}

// IncResync increments the resync counter.
func (c *Collector) IncResync(accepted bool) {
	label := "rejected"
	if accepted {
		label = "accepted"
	}
	c.ResyncTotal.WithLabelValues(label).Inc()
}

// SetPipelineUptime sets the pipeline uptime gauge.
func (c *Collector) SetPipelineUptime(seconds float64) {
	c.PipelineUptime.Set(seconds)
}
