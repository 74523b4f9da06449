package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"livepush/internal/core/domain"
	"livepush/internal/core/ports"
	"livepush/pkg/observable"
	"livepush/pkg/retry"

	"go.uber.org/zap"
)

// Error messages surfaced to the presentation layer when capture setup fails.
const (
	msgPermissionDenied = "Microphone permission denied"
	msgInvalidConfig    = "Invalid audio configuration"
	msgInitFailed       = "Microphone initialization failed"
)

// minBufferQueryBits is the PCM format used for the platform minimum
// buffer size query, independent of the configured sample format.
const minBufferQueryBits = 16

// captureBufferFactor is applied to the platform-reported minimum buffer
// size when allocating the capture buffer.
const captureBufferFactor = 2.0

// CaptureLifecycleManager owns the hardware capture handle. No other
// component reads or mutates the handle directly.
type CaptureLifecycleManager struct {
	logger       *zap.SugaredLogger
	device       ports.CaptureDevice
	cfg          domain.CaptureConfig
	pollInterval time.Duration
	retryCfg     retry.Config

	mu            sync.Mutex
	handle        ports.CaptureHandle
	bufferSize    int
	minBufferSize int
	pollCancel    context.CancelFunc
	pollDone      chan struct{}

	status *observable.Value[domain.CaptureStatus]
	health *observable.Value[domain.BufferHealth]
}

func NewCaptureLifecycleManager(device ports.CaptureDevice, cfg domain.CaptureConfig, pollInterval time.Duration, logger *zap.SugaredLogger) *CaptureLifecycleManager {
	return &CaptureLifecycleManager{
		logger:       logger,
		device:       device,
		cfg:          cfg,
		pollInterval: pollInterval,
		retryCfg:     retry.DefaultConfig(),
		status:       observable.NewValue(domain.CaptureStatus{State: domain.CaptureIdle}),
		health:       observable.NewValue(domain.BufferHealth{}),
	}
}

// Status exposes the capture lifecycle state as a latest-value observable.
func (m *CaptureLifecycleManager) Status() *observable.Value[domain.CaptureStatus] {
	return m.status
}

// BufferHealth exposes the periodic capture buffer snapshot.
func (m *CaptureLifecycleManager) BufferHealth() *observable.Value[domain.BufferHealth] {
	return m.health
}

// Initialize opens the capture device for the configured session. Any
// prior handle is released first.
func (m *CaptureLifecycleManager) Initialize() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initializeLocked()
}

func (m *CaptureLifecycleManager) initializeLocked() bool {
	m.releaseHandleLocked()

	if !m.device.HasPermission() {
		m.failLocked(msgPermissionDenied)
		return false
	}

	// Prefer the hardware auto-detected rate; the configured rate is the
	// fallback for platforms without auto-detection.
	requestRate := m.cfg.SampleRateHz
	if m.device.SupportsAutoRate() {
		requestRate = domain.SampleRateAuto
	}

	minSize, err := m.device.MinBufferSize(m.cfg.SampleRateHz, m.cfg.ChannelCount, minBufferQueryBits)
	if err != nil {
		m.logger.Errorw("minimum buffer size query failed",
			"sample_rate", m.cfg.SampleRateHz,
			"channels", m.cfg.ChannelCount,
			"error", err,
		)
		m.failLocked(msgInvalidConfig)
		return false
	}

	bufferSize := int(float64(minSize) * captureBufferFactor)

	handle, err := m.device.Open(requestRate, m.cfg.ChannelCount, bufferSize)
	if err != nil {
		m.logger.Errorw("capture device open failed",
			"request_rate", requestRate,
			"buffer_size", bufferSize,
			"error", err,
		)
		m.failLocked(msgInitFailed)
		return false
	}

	m.handle = handle
	m.bufferSize = bufferSize
	m.minBufferSize = minSize

	m.status.Store(domain.CaptureStatus{
		State:      domain.CaptureInitialized,
		SampleRate: handle.SampleRate(),
		BufferSize: bufferSize,
	})
	m.publishHealthLocked(false)

	m.logger.Infow("capture initialized",
		"sample_rate", handle.SampleRate(),
		"buffer_size", bufferSize,
		"min_buffer_size", minSize,
	)
	return true
}

// StartRecording starts hardware capture and the buffer-health poll. When
// not initialized it first attempts auto-initialization with bounded retry.
func (m *CaptureLifecycleManager) StartRecording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		err := retry.Do(context.Background(), m.retryCfg, func() error {
			if m.initializeLocked() {
				return nil
			}
			return errors.New(m.status.Load().Message)
		}, func(attempt int, err error) {
			m.logger.Warnw("capture auto-initialize retry",
				"attempt", attempt,
				"error", err,
			)
		})
		if err != nil {
			m.logger.Errorw("capture auto-initialize failed", "error", err)
			return false
		}
	}

	if err := m.handle.StartRecording(); err != nil {
		m.logger.Errorw("failed to start hardware capture", "error", err)
		m.failLocked(msgInitFailed)
		return false
	}

	m.startPollLocked()
	m.status.Store(domain.CaptureStatus{
		State:      domain.CaptureRecording,
		SampleRate: m.handle.SampleRate(),
		BufferSize: m.bufferSize,
	})
	m.publishHealthLocked(true)
	return true
}

// StopRecording cancels the poll and stops hardware capture, returning to
// Initialized.
func (m *CaptureLifecycleManager) StopRecording() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopPollLocked()
	if m.handle == nil {
		return
	}
	if err := m.handle.Stop(); err != nil {
		m.logger.Warnw("failed to stop hardware capture", "error", err)
	}
	m.status.Store(domain.CaptureStatus{
		State:      domain.CaptureInitialized,
		SampleRate: m.handle.SampleRate(),
		BufferSize: m.bufferSize,
	})
	m.publishHealthLocked(false)
}

// Release frees the capture handle and resets all published state.
// Idempotent; safe to call from Recording without stopping first.
func (m *CaptureLifecycleManager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopPollLocked()
	m.releaseHandleLocked()
	m.bufferSize = 0
	m.minBufferSize = 0
	m.status.Store(domain.CaptureStatus{State: domain.CaptureIdle})
	m.health.Store(domain.BufferHealth{})
}

// Read pulls raw PCM from the capture handle.
func (m *CaptureLifecycleManager) Read(p []byte) (int, error) {
	m.mu.Lock()
	handle := m.handle
	m.mu.Unlock()

	if handle == nil {
		return 0, domain.ErrNotInitialized
	}
	return handle.Read(p)
}

// BufferSize returns the allocated capture buffer size, 0 when idle.
func (m *CaptureLifecycleManager) BufferSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bufferSize
}

func (m *CaptureLifecycleManager) failLocked(message string) {
	m.status.Store(domain.CaptureStatus{State: domain.CaptureError, Message: message})
}

func (m *CaptureLifecycleManager) releaseHandleLocked() {
	if m.handle == nil {
		return
	}
	if err := m.handle.Stop(); err != nil {
		m.logger.Debugw("stop during release", "error", err)
	}
	if err := m.handle.Release(); err != nil {
		m.logger.Warnw("failed to release capture handle", "error", err)
	}
	m.handle = nil
}

func (m *CaptureLifecycleManager) publishHealthLocked(recording bool) {
	var rate int
	if m.handle != nil {
		rate = m.handle.SampleRate()
	}
	m.health.Store(domain.BufferHealth{
		SampleRate:    rate,
		BufferSize:    m.bufferSize,
		MinBufferSize: m.minBufferSize,
		Recording:     recording,
		Timestamp:     time.Now(),
	})
}

func (m *CaptureLifecycleManager) startPollLocked() {
	m.stopPollLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.pollCancel = cancel
	m.pollDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.mu.Lock()
				if m.handle != nil {
					m.publishHealthLocked(m.handle.IsRecording())
				}
				m.mu.Unlock()
			}
		}
	}()
}

func (m *CaptureLifecycleManager) stopPollLocked() {
	if m.pollCancel == nil {
		return
	}
	m.pollCancel()
	m.pollCancel = nil

	// Unlock while waiting so the poll goroutine can finish its tick.
	done := m.pollDone
	m.pollDone = nil
	m.mu.Unlock()
	<-done
	m.mu.Lock()
}
