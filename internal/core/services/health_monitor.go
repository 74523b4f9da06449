package services

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"livepush/internal/core/domain"
	"livepush/pkg/observable"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Hard recovery thresholds. Independent of, and stricter than, the
// issue-list classification: crossing one of these tells the controller
// to force a reconnect rather than merely display a warning.
const (
	recoveryOverflowLimit  = 10
	recoveryUnderrunLimit  = 10
	recoveryLatencyLimitMs = 200.0
)

// HealthMonitor aggregates session-wide audio pipeline signals into a
// health classification and a recovery signal.
type HealthMonitor struct {
	logger       *zap.SugaredLogger
	tickInterval time.Duration

	// memoryMb is swappable in tests; the default reads runtime heap usage.
	memoryMb func() float64

	mu      sync.Mutex
	active  bool
	cancel  context.CancelFunc
	done    chan struct{}
	metrics domain.AudioHealthMetrics

	status *observable.Value[domain.HealthStatus]

	// Throttles overflow/underrun warnings so an event storm cannot
	// flood the log.
	warnLimiter *rate.Limiter
}

func NewHealthMonitor(tickInterval time.Duration, logger *zap.SugaredLogger) *HealthMonitor {
	return &HealthMonitor{
		logger:       logger,
		tickInterval: tickInterval,
		memoryMb:     heapMb,
		status:       observable.NewValue(domain.HealthStatus{Level: domain.HealthIdle}),
		warnLimiter:  rate.NewLimiter(rate.Every(5*time.Second), 3),
	}
}

func heapMb() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / (1024 * 1024)
}

// Status exposes the latest health classification.
func (h *HealthMonitor) Status() *observable.Value[domain.HealthStatus] {
	return h.status
}

// Metrics returns a copy of the current session metrics.
func (h *HealthMonitor) Metrics() domain.AudioHealthMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.metrics
}

// StartMonitoring records the session baseline and launches the periodic
// tick. No-op when already active.
func (h *HealthMonitor) StartMonitoring() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active {
		h.logger.Warn("health monitoring already active")
		return
	}

	now := time.Now()
	baseline := h.memoryMb()
	h.metrics = domain.AudioHealthMetrics{
		SessionStartTime: now,
		BaselineMemoryMb: baseline,
		CurrentMemoryMb:  baseline,
	}
	h.active = true
	h.status.Store(domain.HealthStatus{Level: domain.HealthMonitoring, StartedAt: now})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.cancel = cancel
	h.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(h.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.tick()
			}
		}
	}()

	h.logger.Infow("health monitoring started", "baseline_memory_mb", baseline)
}

// StopMonitoring cancels the tick and clears all metrics.
func (h *HealthMonitor) StopMonitoring() {
	h.mu.Lock()

	if !h.active {
		h.mu.Unlock()
		return
	}
	h.active = false
	h.cancel()
	h.cancel = nil
	done := h.done
	h.done = nil
	h.metrics = domain.AudioHealthMetrics{}
	h.status.Store(domain.HealthStatus{Level: domain.HealthIdle})
	h.mu.Unlock()

	<-done
}

// Reset is an alias for StopMonitoring.
func (h *HealthMonitor) Reset() {
	h.StopMonitoring()
}

// ReportBufferOverflow records a capture-side overflow and immediately
// re-evaluates the recovery thresholds.
func (h *HealthMonitor) ReportBufferOverflow() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.metrics.BufferOverflowCount++
	if h.warnLimiter.Allow() {
		h.logger.Warnw("buffer overflow reported", "count", h.metrics.BufferOverflowCount)
	}
	h.checkRecoveryLocked()
}

// ReportBufferUnderrun records a consumer-side underrun and immediately
// re-evaluates the recovery thresholds.
func (h *HealthMonitor) ReportBufferUnderrun() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.metrics.BufferUnderrunCount++
	if h.warnLimiter.Allow() {
		h.logger.Warnw("buffer underrun reported", "count", h.metrics.BufferUnderrunCount)
	}
	h.checkRecoveryLocked()
}

// UpdateLatency records a latency sample, maintaining the cumulative mean
// and maximum.
func (h *HealthMonitor) UpdateLatency(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.metrics.CurrentLatencyMs = latencyMs
	h.metrics.LatencySampleCount++
	n := float64(h.metrics.LatencySampleCount)
	h.metrics.AverageLatencyMs += (latencyMs - h.metrics.AverageLatencyMs) / n
	if latencyMs > h.metrics.MaxLatencyMs {
		h.metrics.MaxLatencyMs = latencyMs
	}

	if latencyMs > recoveryLatencyLimitMs {
		h.checkRecoveryLocked()
	}
}

// AcknowledgeRecovery consumes the recovery signal once the controller
// has acted on it. The triggering counters and latency reading are
// zeroed and the status returns to Monitoring, so a single threshold
// crossing forces exactly one recovery; a fresh accumulation raises
// the signal again.
func (h *HealthMonitor) AcknowledgeRecovery() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.active {
		return
	}
	h.metrics.BufferOverflowCount = 0
	h.metrics.BufferUnderrunCount = 0
	h.metrics.CurrentLatencyMs = 0
	h.status.Store(domain.HealthStatus{
		Level:     domain.HealthMonitoring,
		StartedAt: h.metrics.SessionStartTime,
	})
	h.logger.Info("recovery acknowledged, counters cleared")
}

func (h *HealthMonitor) checkRecoveryLocked() {
	if !h.active {
		return
	}

	var reason string
	switch {
	case h.metrics.BufferOverflowCount >= recoveryOverflowLimit:
		reason = fmt.Sprintf("buffer overflow count reached %d", h.metrics.BufferOverflowCount)
	case h.metrics.BufferUnderrunCount >= recoveryUnderrunLimit:
		reason = fmt.Sprintf("buffer underrun count reached %d", h.metrics.BufferUnderrunCount)
	case h.metrics.CurrentLatencyMs > recoveryLatencyLimitMs:
		reason = fmt.Sprintf("audio latency %.0fms exceeds %.0fms", h.metrics.CurrentLatencyMs, recoveryLatencyLimitMs)
	default:
		return
	}

	h.status.Store(domain.HealthStatus{
		Level:   domain.HealthRecoveryNeeded,
		Reason:  reason,
		Metrics: h.metrics,
	})
}

func (h *HealthMonitor) tick() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.active {
		return
	}

	h.metrics.CurrentMemoryMb = h.memoryMb()
	h.metrics.MemoryGrowthMb = h.metrics.CurrentMemoryMb - h.metrics.BaselineMemoryMb
	h.metrics.SessionDurationMs = time.Since(h.metrics.SessionStartTime).Milliseconds()

	// The hard recovery signal outlives the per-tick classification until
	// the controller acts on it.
	if h.metrics.BufferOverflowCount >= recoveryOverflowLimit ||
		h.metrics.BufferUnderrunCount >= recoveryUnderrunLimit ||
		h.metrics.CurrentLatencyMs > recoveryLatencyLimitMs {
		h.checkRecoveryLocked()
		return
	}

	issues := collectIssues(h.metrics)
	switch {
	case len(issues) == 0:
		h.status.Store(domain.HealthStatus{Level: domain.HealthHealthy, Metrics: h.metrics})
	case len(issues) <= 2:
		h.status.Store(domain.HealthStatus{Level: domain.HealthDegraded, Metrics: h.metrics, Issues: issues})
	default:
		h.status.Store(domain.HealthStatus{Level: domain.HealthCritical, Metrics: h.metrics, Issues: issues})
	}
}

// collectIssues compares each derived metric against its threshold and
// returns human-readable descriptions of every breach.
func collectIssues(m domain.AudioHealthMetrics) []string {
	var issues []string

	if r := m.OverflowRate(); r > domain.OverflowRateThreshold {
		issues = append(issues, fmt.Sprintf("high buffer overflow rate: %.3f/s", r))
	}
	if r := m.UnderrunRate(); r > domain.UnderrunRateThreshold {
		issues = append(issues, fmt.Sprintf("high buffer underrun rate: %.3f/s", r))
	}
	if m.CurrentLatencyMs > domain.LatencyWarnThresholdMs {
		issues = append(issues, fmt.Sprintf("high audio latency: %.0fms", m.CurrentLatencyMs))
	}
	if g := m.MemoryGrowthPerHourMb(); g > domain.MemoryGrowthHighMbPerHr {
		issues = append(issues, fmt.Sprintf("severe memory growth: %.1fMB/h", g))
	} else if g > domain.MemoryGrowthWarnMbPerHr {
		issues = append(issues, fmt.Sprintf("elevated memory growth: %.1fMB/h", g))
	}

	return issues
}
