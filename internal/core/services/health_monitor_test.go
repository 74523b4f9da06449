package services

import (
	"testing"
	"time"

	"livepush/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMonitor(t *testing.T) *HealthMonitor {
	t.Helper()
	h := NewHealthMonitor(time.Hour, zap.NewNop().Sugar()) // tick driven manually
	h.memoryMb = func() float64 { return 100 }
	h.StartMonitoring()
	t.Cleanup(h.StopMonitoring)
	return h
}

func TestStartMonitoring_SetsBaselineAndStatus(t *testing.T) {
	h := newTestMonitor(t)

	status := h.Status().Load()
	assert.Equal(t, domain.HealthMonitoring, status.Level)
	assert.False(t, status.StartedAt.IsZero())

	m := h.Metrics()
	assert.Equal(t, 100.0, m.BaselineMemoryMb)
	assert.Equal(t, 100.0, m.CurrentMemoryMb)
}

func TestStartMonitoring_SecondCallIsNoop(t *testing.T) {
	h := newTestMonitor(t)
	started := h.Metrics().SessionStartTime

	h.StartMonitoring()
	assert.Equal(t, started, h.Metrics().SessionStartTime)
}

func TestReportBufferOverflow_TriggersRecoveryAtThreshold(t *testing.T) {
	h := newTestMonitor(t)

	for i := 0; i < 9; i++ {
		h.ReportBufferOverflow()
	}
	assert.NotEqual(t, domain.HealthRecoveryNeeded, h.Status().Load().Level)

	h.ReportBufferOverflow()
	status := h.Status().Load()
	require.Equal(t, domain.HealthRecoveryNeeded, status.Level)
	assert.Contains(t, status.Reason, "overflow")
	assert.Equal(t, int64(10), status.Metrics.BufferOverflowCount)
}

func TestReportBufferUnderrun_TriggersRecoveryAtThreshold(t *testing.T) {
	h := newTestMonitor(t)

	for i := 0; i < 10; i++ {
		h.ReportBufferUnderrun()
	}
	status := h.Status().Load()
	require.Equal(t, domain.HealthRecoveryNeeded, status.Level)
	assert.Contains(t, status.Reason, "underrun")
}

func TestUpdateLatency_SevereLatencyTriggersRecovery(t *testing.T) {
	h := newTestMonitor(t)

	h.UpdateLatency(150)
	assert.NotEqual(t, domain.HealthRecoveryNeeded, h.Status().Load().Level)

	h.UpdateLatency(250)
	status := h.Status().Load()
	require.Equal(t, domain.HealthRecoveryNeeded, status.Level)
	assert.Contains(t, status.Reason, "latency")
}

func TestUpdateLatency_CumulativeMeanAndMax(t *testing.T) {
	h := newTestMonitor(t)

	h.UpdateLatency(100)
	h.UpdateLatency(50)
	h.UpdateLatency(150)

	m := h.Metrics()
	assert.Equal(t, 150.0, m.CurrentLatencyMs)
	assert.InDelta(t, 100.0, m.AverageLatencyMs, 1e-9)
	assert.Equal(t, 150.0, m.MaxLatencyMs)
	assert.Equal(t, int64(3), m.LatencySampleCount)
}

func TestTick_ClassifiesHealthy(t *testing.T) {
	h := newTestMonitor(t)
	h.UpdateLatency(50)

	h.tick()
	assert.Equal(t, domain.HealthHealthy, h.Status().Load().Level)
}

func TestTick_ClassifiesDegradedAndCritical(t *testing.T) {
	h := newTestMonitor(t)

	// One issue: latency above the warn threshold but below recovery.
	h.UpdateLatency(150)
	h.tick()
	status := h.Status().Load()
	require.Equal(t, domain.HealthDegraded, status.Level)
	require.Len(t, status.Issues, 1)
	assert.Contains(t, status.Issues[0], "latency")

	// Memory growth adds a second issue (still degraded), then a severe
	// third pushes the classification to critical.
	h.memoryMb = func() float64 { return 100.2 }
	h.mu.Lock()
	h.metrics.SessionStartTime = time.Now().Add(-10 * time.Second)
	h.metrics.BufferOverflowCount = 5 // 0.5/s over 10s
	h.metrics.BufferUnderrunCount = 5
	h.mu.Unlock()
	h.tick()
	status = h.Status().Load()
	assert.Equal(t, domain.HealthCritical, status.Level)
	assert.GreaterOrEqual(t, len(status.Issues), 3)
}

func TestTick_PreservesRecoveryNeeded(t *testing.T) {
	h := newTestMonitor(t)

	for i := 0; i < 10; i++ {
		h.ReportBufferOverflow()
	}
	require.Equal(t, domain.HealthRecoveryNeeded, h.Status().Load().Level)

	h.tick()
	assert.Equal(t, domain.HealthRecoveryNeeded, h.Status().Load().Level,
		"the recovery signal must survive periodic reclassification")
}

func TestAcknowledgeRecovery_ConsumesSignalOnce(t *testing.T) {
	h := newTestMonitor(t)

	for i := 0; i < 10; i++ {
		h.ReportBufferOverflow()
	}
	require.Equal(t, domain.HealthRecoveryNeeded, h.Status().Load().Level)

	h.AcknowledgeRecovery()
	assert.Equal(t, domain.HealthMonitoring, h.Status().Load().Level)
	assert.Equal(t, int64(0), h.Metrics().BufferOverflowCount)

	// The tick must not resurrect the signal from the old crossing.
	h.tick()
	assert.NotEqual(t, domain.HealthRecoveryNeeded, h.Status().Load().Level)

	// A fresh accumulation triggers again.
	for i := 0; i < 10; i++ {
		h.ReportBufferOverflow()
	}
	assert.Equal(t, domain.HealthRecoveryNeeded, h.Status().Load().Level)
}

func TestAcknowledgeRecovery_ClearsLatencyTrigger(t *testing.T) {
	h := newTestMonitor(t)

	h.UpdateLatency(250)
	require.Equal(t, domain.HealthRecoveryNeeded, h.Status().Load().Level)

	h.AcknowledgeRecovery()
	h.tick()
	assert.NotEqual(t, domain.HealthRecoveryNeeded, h.Status().Load().Level)

	// The session-wide aggregates survive the acknowledgement.
	assert.Equal(t, 250.0, h.Metrics().MaxLatencyMs)
}

func TestAcknowledgeRecovery_InactiveIsNoop(t *testing.T) {
	h := NewHealthMonitor(time.Hour, zap.NewNop().Sugar())

	h.AcknowledgeRecovery()
	assert.Equal(t, domain.HealthIdle, h.Status().Load().Level)
}

func TestStopMonitoring_ClearsEverything(t *testing.T) {
	h := NewHealthMonitor(time.Hour, zap.NewNop().Sugar())
	h.memoryMb = func() float64 { return 100 }

	h.StartMonitoring()
	h.ReportBufferOverflow()
	h.StopMonitoring()

	assert.Equal(t, domain.HealthIdle, h.Status().Load().Level)
	assert.Equal(t, domain.AudioHealthMetrics{}, h.Metrics())

	// Idempotent
	h.StopMonitoring()
	assert.Equal(t, domain.HealthIdle, h.Status().Load().Level)
}

func TestReports_BeforeStartAreIgnoredForStatus(t *testing.T) {
	h := NewHealthMonitor(time.Hour, zap.NewNop().Sugar())

	for i := 0; i < 20; i++ {
		h.ReportBufferOverflow()
	}
	assert.Equal(t, domain.HealthIdle, h.Status().Load().Level)
}
