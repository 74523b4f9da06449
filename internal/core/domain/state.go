package domain

import "time"

// StreamPhase is the discriminant of ConnectionState.
type StreamPhase int

const (
	PhaseIdle StreamPhase = iota
	PhasePreparing
	PhasePreviewing
	PhaseConnecting
	PhaseStreaming
	PhaseReconnecting
	PhaseError
)

func (p StreamPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePreparing:
		return "preparing"
	case PhasePreviewing:
		return "previewing"
	case PhaseConnecting:
		return "connecting"
	case PhaseStreaming:
		return "streaming"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectionState is the published state of the streaming session.
// Exactly one phase is active at a time; payload fields are meaningful
// only for the phases that carry them.
type ConnectionState struct {
	Phase       StreamPhase
	StartedAt   time.Time    // Streaming
	Attempt     int          // Reconnecting
	MaxAttempts int          // Reconnecting
	Err         *StreamError // Error
}

// CaptureState reports the capture device lifecycle.
type CaptureState int

const (
	CaptureIdle CaptureState = iota
	CaptureInitialized
	CaptureRecording
	CaptureError
)

func (s CaptureState) String() string {
	switch s {
	case CaptureIdle:
		return "idle"
	case CaptureInitialized:
		return "initialized"
	case CaptureRecording:
		return "recording"
	case CaptureError:
		return "error"
	default:
		return "unknown"
	}
}

// CaptureStatus is the published capture lifecycle state plus the
// parameters negotiated with the hardware.
type CaptureStatus struct {
	State      CaptureState
	SampleRate int    // Initialized, Recording
	BufferSize int    // Initialized, Recording
	Message    string // Error
}

// BufferHealth is the periodic capture buffer snapshot published while
// recording.
type BufferHealth struct {
	SampleRate    int
	BufferSize    int
	MinBufferSize int
	Recording     bool
	Timestamp     time.Time
}
