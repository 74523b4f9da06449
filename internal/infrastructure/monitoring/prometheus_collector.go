package monitoring

import (
	"livepush/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exports pipeline statistics. Implements the
// metrics recorder port consumed by the connection controller.
type PrometheusCollector struct {
	buffersProcessedTotal prometheus.Counter
	bytesProcessedTotal   prometheus.Counter
	bufferErrorsTotal     prometheus.Counter
	releaseErrorsTotal    prometheus.Counter

	bufferOverflowsTotal prometheus.Counter
	bufferUnderrunsTotal prometheus.Counter
	reconnectsTotal      prometheus.Counter

	audioLatency prometheus.Histogram

	healthScore prometheus.Gauge
	healthLevel prometheus.Gauge
	streamPhase prometheus.Gauge

	// Counters are cumulative per session; deltas are derived from the
	// last observed snapshot.
	lastStats  domain.BufferStats
	lastHealth domain.AudioHealthMetrics
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		buffersProcessedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livepush_buffers_processed_total",
			Help: "Total number of encoder output buffers processed",
		}),

		bytesProcessedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livepush_bytes_processed_total",
			Help: "Total number of audio payload bytes processed",
		}),

		bufferErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livepush_buffer_errors_total",
			Help: "Total number of encoder buffer retrieval or validation failures",
		}),

		releaseErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livepush_release_errors_total",
			Help: "Total number of encoder buffer release failures",
		}),

		bufferOverflowsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livepush_buffer_overflows_total",
			Help: "Total number of reported buffer overflows",
		}),

		bufferUnderrunsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livepush_buffer_underruns_total",
			Help: "Total number of reported buffer underruns",
		}),

		reconnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "livepush_reconnect_attempts_total",
			Help: "Total number of reconnection attempts",
		}),

		audioLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "livepush_audio_latency_seconds",
			Help:    "End-to-end audio latency reported by the transport",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1},
		}),

		healthScore: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "livepush_health_score",
			Help: "Composite session health score (0-1)",
		}),

		healthLevel: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "livepush_health_level",
			Help: "Health classification (0 idle, 1 monitoring, 2 healthy, 3 degraded, 4 critical, 5 recovery needed)",
		}),

		streamPhase: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "livepush_stream_phase",
			Help: "Connection state machine phase (0 idle, 1 preparing, 2 previewing, 3 connecting, 4 streaming, 5 reconnecting, 6 error)",
		}),
	}
}

func (p *PrometheusCollector) RecordBufferStats(stats domain.BufferStats) {
	addDelta := func(c prometheus.Counter, current, last int64) {
		if d := current - last; d > 0 {
			c.Add(float64(d))
		}
	}
	addDelta(p.buffersProcessedTotal, stats.TotalBuffersProcessed, p.lastStats.TotalBuffersProcessed)
	addDelta(p.bytesProcessedTotal, stats.TotalBytesProcessed, p.lastStats.TotalBytesProcessed)
	addDelta(p.bufferErrorsTotal, stats.BufferErrors, p.lastStats.BufferErrors)
	addDelta(p.releaseErrorsTotal, stats.ReleaseErrors, p.lastStats.ReleaseErrors)
	p.lastStats = stats
}

func (p *PrometheusCollector) RecordHealth(status domain.HealthStatus, score float64) {
	p.healthScore.Set(score)
	p.healthLevel.Set(float64(status.Level))

	// The monitor zeroes its counters when a recovery is acknowledged;
	// after such a reset the full current value is new.
	addSince := func(c prometheus.Counter, current, last int64) {
		d := current - last
		if d < 0 {
			d = current
		}
		if d > 0 {
			c.Add(float64(d))
		}
	}

	m := status.Metrics
	addSince(p.bufferOverflowsTotal, m.BufferOverflowCount, p.lastHealth.BufferOverflowCount)
	addSince(p.bufferUnderrunsTotal, m.BufferUnderrunCount, p.lastHealth.BufferUnderrunCount)
	p.lastHealth = m
}

func (p *PrometheusCollector) RecordState(phase domain.StreamPhase) {
	p.streamPhase.Set(float64(phase))
}

func (p *PrometheusCollector) RecordReconnectAttempt() {
	p.reconnectsTotal.Inc()
}

func (p *PrometheusCollector) RecordLatency(latencyMs float64) {
	p.audioLatency.Observe(latencyMs / 1000)
}
