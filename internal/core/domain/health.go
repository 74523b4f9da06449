package domain

import "time"

// Thresholds for the derived health metrics. Rates are events per second,
// latency in milliseconds, memory growth in MB per hour.
const (
	OverflowRateThreshold    = 0.01
	UnderrunRateThreshold    = 0.01
	LatencyWarnThresholdMs   = 100.0
	LatencySevereThresholdMs = 200.0
	MemoryGrowthWarnMbPerHr  = 50.0
	MemoryGrowthHighMbPerHr  = 100.0

	// HealthyScoreFloor is the minimum composite score considered healthy.
	HealthyScoreFloor = 0.7
)

// AudioHealthMetrics aggregates session-wide audio pipeline signals.
// Owned exclusively by the health monitor.
type AudioHealthMetrics struct {
	SessionStartTime    time.Time
	SessionDurationMs   int64
	BufferOverflowCount int64
	BufferUnderrunCount int64
	CurrentLatencyMs    float64
	AverageLatencyMs    float64
	MaxLatencyMs        float64
	LatencySampleCount  int64
	BaselineMemoryMb    float64
	CurrentMemoryMb     float64
	MemoryGrowthMb      float64
}

// OverflowRate returns buffer overflows per second of session time.
func (m AudioHealthMetrics) OverflowRate() float64 {
	if m.SessionDurationMs == 0 {
		return 0
	}
	return float64(m.BufferOverflowCount) / (float64(m.SessionDurationMs) / 1000.0)
}

// UnderrunRate returns buffer underruns per second of session time.
func (m AudioHealthMetrics) UnderrunRate() float64 {
	if m.SessionDurationMs == 0 {
		return 0
	}
	return float64(m.BufferUnderrunCount) / (float64(m.SessionDurationMs) / 1000.0)
}

// MemoryGrowthPerHourMb returns memory growth normalized to MB per hour.
func (m AudioHealthMetrics) MemoryGrowthPerHourMb() float64 {
	if m.SessionDurationMs == 0 {
		return 0
	}
	return m.MemoryGrowthMb / (float64(m.SessionDurationMs) / 3_600_000.0)
}

// HealthScore derives a [0,1] composite score from the current metrics.
// Each degraded signal subtracts a fixed penalty; severe latency and severe
// memory growth stack on top of their warning penalties.
func (m AudioHealthMetrics) HealthScore() float64 {
	score := 1.0
	if m.OverflowRate() > OverflowRateThreshold {
		score -= 0.3
	}
	if m.UnderrunRate() > UnderrunRateThreshold {
		score -= 0.3
	}
	if m.CurrentLatencyMs > LatencyWarnThresholdMs {
		score -= 0.2
	}
	if m.CurrentLatencyMs > LatencySevereThresholdMs {
		score -= 0.2
	}
	growth := m.MemoryGrowthPerHourMb()
	if growth > MemoryGrowthWarnMbPerHr {
		score -= 0.1
	}
	if growth > MemoryGrowthHighMbPerHr {
		score -= 0.2
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// IsHealthy reports whether the composite score is at or above the floor.
func (m AudioHealthMetrics) IsHealthy() bool {
	return m.HealthScore() >= HealthyScoreFloor
}

// HealthLevel is the discriminant of HealthStatus.
type HealthLevel int

const (
	HealthIdle HealthLevel = iota
	HealthMonitoring
	HealthHealthy
	HealthDegraded
	HealthCritical
	HealthRecoveryNeeded
)

func (l HealthLevel) String() string {
	switch l {
	case HealthIdle:
		return "idle"
	case HealthMonitoring:
		return "monitoring"
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthCritical:
		return "critical"
	case HealthRecoveryNeeded:
		return "recovery_needed"
	default:
		return "unknown"
	}
}

// HealthStatus is the latest health classification published by the
// monitor. Exactly one level is active at a time; payload fields are
// meaningful only for the levels that carry them.
type HealthStatus struct {
	Level     HealthLevel
	StartedAt time.Time          // Monitoring
	Metrics   AudioHealthMetrics // all levels past Monitoring
	Issues    []string           // Degraded, Critical
	Reason    string             // RecoveryNeeded
}
