package ports

import "livepush/internal/core/domain"

// MetricsRecorder receives periodic pipeline statistics for export.
type MetricsRecorder interface {
	RecordBufferStats(stats domain.BufferStats)
	RecordHealth(status domain.HealthStatus, score float64)
	RecordState(phase domain.StreamPhase)
	RecordReconnectAttempt()
	RecordLatency(latencyMs float64)
}
