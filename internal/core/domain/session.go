package domain

import "time"

// SessionID identifies one streaming session.
type SessionID string

// SessionRecord is the persisted summary of a finished (or aborted)
// streaming session, used for long-session stability analysis.
type SessionRecord struct {
	ID             SessionID          `json:"id"`
	URL            string             `json:"url"`
	StartedAt      time.Time          `json:"started_at"`
	EndedAt        time.Time          `json:"ended_at"`
	ReconnectCount int                `json:"reconnect_count"`
	Stats          BufferStats        `json:"stats"`
	Metrics        AudioHealthMetrics `json:"metrics"`
}
