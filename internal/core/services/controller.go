package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"livepush/internal/core/domain"
	"livepush/internal/core/ports"
	"livepush/pkg/observable"
	"livepush/pkg/tracing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ControllerConfig tunes the reconnection loop and the statistics task.
type ControllerConfig struct {
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	RestartPause         time.Duration
	ConnectTimeout       time.Duration
	StatsInterval        time.Duration
}

// DefaultControllerConfig returns the production reconnection parameters:
// backoff 2, 4, 8, 16, 30s (capped) for attempts 1-5.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   2 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		RestartPause:         500 * time.Millisecond,
		ConnectTimeout:       5 * time.Second,
		StatsInterval:        time.Second,
	}
}

// backoffDelay returns the reconnection delay for a 1-based attempt:
// baseDelay doubled per attempt, capped at maxDelay.
func backoffDelay(cfg ControllerConfig, attempt int) time.Duration {
	delay := cfg.ReconnectBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.ReconnectMaxDelay {
			return cfg.ReconnectMaxDelay
		}
	}
	if delay > cfg.ReconnectMaxDelay {
		return cfg.ReconnectMaxDelay
	}
	return delay
}

// ConnectionController orchestrates capture, timestamping, transport and
// health monitoring for one streaming session, and owns the reconnection
// loop.
type ConnectionController struct {
	logger    *zap.SugaredLogger
	cfg       ControllerConfig
	capture   *CaptureLifecycleManager
	health    *HealthMonitor
	ts        *TimestampSynthesizer
	transport ports.Transport
	metrics   ports.MetricsRecorder
	sessions  ports.SessionRepository

	state *observable.Value[domain.ConnectionState]

	// attempt and reconnectCount are touched from the reconnect loop,
	// which deliberately never takes mu.
	attempt        atomic.Int32
	reconnectCount atomic.Int32

	mu              sync.Mutex
	url             string
	sessionID       domain.SessionID
	sessionStart    time.Time
	sessionCtx      context.Context
	sessionCancel   context.CancelFunc
	sessionEndSpan  func()
	reconnectCancel context.CancelFunc
	reconnectDone   chan struct{}
	statsDone       chan struct{}
	pumpDone        chan struct{}
}

func NewConnectionController(
	cfg ControllerConfig,
	capture *CaptureLifecycleManager,
	health *HealthMonitor,
	ts *TimestampSynthesizer,
	transport ports.Transport,
	metrics ports.MetricsRecorder,
	sessions ports.SessionRepository,
	logger *zap.SugaredLogger,
) *ConnectionController {
	c := &ConnectionController{
		logger:    logger,
		cfg:       cfg,
		capture:   capture,
		health:    health,
		ts:        ts,
		transport: transport,
		metrics:   metrics,
		sessions:  sessions,
		state:     observable.NewValue(domain.ConnectionState{Phase: domain.PhaseIdle}),
	}

	transport.SetCallbacks(ports.TransportCallbacks{
		OnConnectionSuccess: c.onConnectionSuccess,
		OnConnectionFailed:  c.onConnectionFailed,
		OnDisconnect:        c.onDisconnect,
		OnNewBitrate:        c.onNewBitrate,
		OnLatency:           c.onLatency,
	})

	return c
}

// State exposes the connection state as a latest-value observable.
func (c *ConnectionController) State() *observable.Value[domain.ConnectionState] {
	return c.state
}

func (c *ConnectionController) publish(state domain.ConnectionState) {
	c.state.Store(state)
	if c.metrics != nil {
		c.metrics.RecordState(state.Phase)
	}
}

// StartPreview performs local setup: Idle -> Preparing -> Previewing.
func (c *ConnectionController) StartPreview() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	phase := c.state.Load().Phase
	if phase != domain.PhaseIdle && phase != domain.PhaseError {
		return nil
	}

	c.publish(domain.ConnectionState{Phase: domain.PhasePreparing})

	if !c.capture.Initialize() {
		streamErr := captureError(c.capture.Status().Load())
		c.publish(domain.ConnectionState{Phase: domain.PhaseError, Err: streamErr})
		return streamErr
	}

	c.publish(domain.ConnectionState{Phase: domain.PhasePreviewing})
	return nil
}

// captureError maps a capture failure message to the user-facing taxonomy.
func captureError(status domain.CaptureStatus) *domain.StreamError {
	switch status.Message {
	case msgPermissionDenied:
		return domain.NewPermissionDenied("microphone")
	default:
		return &domain.StreamError{Kind: domain.ErrMicNotAvailable, Reason: status.Message}
	}
}

// StartStream begins a streaming session toward url. Valid from
// Previewing, or from Error as the manual restart path.
func (c *ConnectionController) StartStream(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	phase := c.state.Load().Phase
	if phase != domain.PhasePreviewing && phase != domain.PhaseError {
		return domain.NewConnectionFailed("stream already active")
	}

	// A session that ended in Error still owns live tasks and an open
	// transport; retire it before starting anew.
	if c.sessionCancel != nil {
		c.stopStreamLocked()
	}

	c.url = url
	c.sessionID = domain.SessionID(uuid.NewString())
	c.sessionStart = time.Now()
	c.attempt.Store(0)
	c.reconnectCount.Store(0)

	ctx, cancel := context.WithCancel(context.Background())
	spanCtx, span := tracing.TraceSession(ctx, string(c.sessionID), url)
	c.sessionCtx = spanCtx
	c.sessionCancel = cancel
	c.sessionEndSpan = func() { span.End() }

	c.ts.Reset()
	c.health.StartMonitoring()

	if !c.capture.StartRecording() {
		streamErr := captureError(c.capture.Status().Load())
		c.teardownSessionLocked()
		c.publish(domain.ConnectionState{Phase: domain.PhaseError, Err: streamErr})
		return streamErr
	}

	c.publish(domain.ConnectionState{Phase: domain.PhaseConnecting})

	if err := c.transport.Start(spanCtx, url); err != nil {
		streamErr := domain.NewConnectionFailed(err.Error())
		tracing.RecordError(spanCtx, streamErr)
		c.capture.StopRecording()
		c.teardownSessionLocked()
		c.publish(domain.ConnectionState{Phase: domain.PhaseError, Err: streamErr})
		return streamErr
	}

	c.startStatsLocked(spanCtx)
	c.startPumpLocked(spanCtx)

	c.logger.Infow("stream starting",
		"session_id", c.sessionID,
		"url", url,
	)
	return nil
}

// StopStream cancels the reconnection and statistics tasks, stops the
// transport and capture, persists the session summary, and returns to
// Previewing.
func (c *ConnectionController) StopStream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopStreamLocked()
	c.publish(domain.ConnectionState{Phase: domain.PhasePreviewing})
}

func (c *ConnectionController) stopStreamLocked() {
	c.stopReconnectLocked(true)
	c.saveSessionLocked()
	c.teardownSessionLocked()

	if err := c.transport.Stop(); err != nil {
		c.logger.Warnw("transport stop failed", "error", err)
	}
	c.capture.StopRecording()
	c.health.StopMonitoring()
}

// teardownSessionLocked cancels the session context (transitively ending
// the stats and pump tasks) and ends the session span.
func (c *ConnectionController) teardownSessionLocked() {
	if c.sessionCancel != nil {
		c.sessionCancel()
		c.sessionCancel = nil
	}
	for _, done := range []chan struct{}{c.statsDone, c.pumpDone} {
		if done != nil {
			c.mu.Unlock()
			<-done
			c.mu.Lock()
		}
	}
	c.statsDone = nil
	c.pumpDone = nil
	if c.sessionEndSpan != nil {
		c.sessionEndSpan()
		c.sessionEndSpan = nil
	}
	c.sessionCtx = nil
}

func (c *ConnectionController) saveSessionLocked() {
	if c.sessions == nil || c.sessionID == "" {
		return
	}
	record := &domain.SessionRecord{
		ID:             c.sessionID,
		URL:            c.url,
		StartedAt:      c.sessionStart,
		EndedAt:        time.Now(),
		ReconnectCount: int(c.reconnectCount.Load()),
		Stats:          c.ts.Stats(),
		Metrics:        c.health.Metrics(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.sessions.Save(ctx, record); err != nil {
		c.logger.Warnw("failed to persist session record",
			"session_id", record.ID,
			"error", err,
		)
	}
	c.sessionID = ""
}

// Shutdown stops any active session and releases the capture device.
func (c *ConnectionController) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopStreamLocked()
	c.capture.Release()
	c.publish(domain.ConnectionState{Phase: domain.PhaseIdle})
}

// CancelReconnection aborts an in-progress reconnection immediately. No
// further attempts occur even if connectivity returns.
func (c *ConnectionController) CancelReconnection() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopStreamLocked()
	c.attempt.Store(0)
	c.publish(domain.ConnectionState{Phase: domain.PhasePreviewing})
}

// --- transport callbacks ---

func (c *ConnectionController) onConnectionSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Cancel without waiting: this callback may fire from inside the
	// reconnect loop's own start call.
	if c.attempt.Load() > 0 {
		c.reconnectCount.Add(1)
	}
	c.stopReconnectLocked(false)
	c.attempt.Store(0)

	if c.sessionCtx != nil {
		tracing.AddSpanEvent(c.sessionCtx, "connected")
	}
	c.publish(domain.ConnectionState{Phase: domain.PhaseStreaming, StartedAt: time.Now()})
	c.logger.Infow("stream connected", "session_id", c.sessionID)
}

func (c *ConnectionController) onConnectionFailed(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	phase := c.state.Load().Phase
	if phase != domain.PhaseConnecting && phase != domain.PhaseStreaming {
		return
	}
	streamErr := domain.NewConnectionFailed(reason)
	if c.sessionCtx != nil {
		tracing.RecordError(c.sessionCtx, streamErr)
	}
	c.publish(domain.ConnectionState{Phase: domain.PhaseError, Err: streamErr})
	c.logger.Errorw("stream connection failed", "reason", reason)
}

func (c *ConnectionController) onDisconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Load().Phase != domain.PhaseStreaming {
		return
	}
	c.logger.Warnw("transport disconnected", "session_id", c.sessionID)
	c.publish(domain.ConnectionState{
		Phase: domain.PhaseError,
		Err:   domain.NewConnectionLost("transport disconnected"),
	})
	c.launchReconnectLocked()
}

func (c *ConnectionController) onNewBitrate(bitrateKbps int) {
	c.logger.Debugw("bitrate updated", "bitrate_kbps", bitrateKbps)
}

func (c *ConnectionController) onLatency(latencyMs float64) {
	c.health.UpdateLatency(latencyMs)
	if c.metrics != nil {
		c.metrics.RecordLatency(latencyMs)
	}
}

// --- reconnection loop ---

// launchReconnectLocked starts the single reconnection task, cancelling
// and awaiting any previous one so two loops never run concurrently.
func (c *ConnectionController) launchReconnectLocked() {
	c.stopReconnectLocked(true)

	if c.sessionCtx == nil {
		return
	}
	ctx, cancel := context.WithCancel(c.sessionCtx)
	done := make(chan struct{})
	c.reconnectCancel = cancel
	c.reconnectDone = done

	url := c.url
	go func() {
		defer close(done)
		c.reconnectLoop(ctx, url)
	}()
}

// stopReconnectLocked cancels the reconnect task. When wait is true it
// also blocks until the loop goroutine has terminated; callbacks that can
// fire from inside the loop must pass false.
func (c *ConnectionController) stopReconnectLocked(wait bool) {
	if c.reconnectCancel != nil {
		c.reconnectCancel()
		c.reconnectCancel = nil
	}
	if !wait || c.reconnectDone == nil {
		return
	}
	done := c.reconnectDone
	c.reconnectDone = nil
	c.mu.Unlock()
	<-done
	c.mu.Lock()
}

// reconnectLoop runs until success, exhaustion or cancellation. It never
// takes c.mu: all state flows through the observable and atomics.
func (c *ConnectionController) reconnectLoop(ctx context.Context, url string) {
	maxAttempts := c.cfg.MaxReconnectAttempts

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c.attempt.Store(int32(attempt))
		delay := backoffDelay(c.cfg, attempt)

		c.publish(domain.ConnectionState{
			Phase:       domain.PhaseReconnecting,
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
		})
		if c.metrics != nil {
			c.metrics.RecordReconnectAttempt()
		}
		tracing.AddSpanEvent(ctx, "reconnect_attempt", tracing.AttemptKey.Int(attempt))
		c.logger.Infow("reconnecting",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
		)

		if !sleepCtx(ctx, delay) {
			return
		}

		c.publish(domain.ConnectionState{Phase: domain.PhaseConnecting})

		if err := c.transport.Stop(); err != nil {
			c.logger.Debugw("transport stop before retry", "error", err)
		}
		if !sleepCtx(ctx, c.cfg.RestartPause) {
			return
		}
		if err := c.transport.Start(ctx, url); err != nil {
			c.logger.Warnw("reconnect start failed", "attempt", attempt, "error", err)
			continue
		}

		// Success cancels this context via the connection callback.
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ConnectTimeout):
		}
		if c.transport.Connected() {
			return
		}
	}

	streamErr := domain.NewConnectionFailed("max reconnection attempts reached")
	tracing.RecordError(ctx, streamErr)
	c.publish(domain.ConnectionState{Phase: domain.PhaseError, Err: streamErr})
	c.logger.Errorw("reconnection exhausted", "max_attempts", maxAttempts)
}

// sleepCtx waits for d; returns false when ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// --- background tasks ---

// startStatsLocked launches the periodic statistics task: exports buffer
// stats and health, and acts on the monitor's recovery signal.
func (c *ConnectionController) startStatsLocked(ctx context.Context) {
	done := make(chan struct{})
	c.statsDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.cfg.StatsInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.statsTick()
			}
		}
	}()
}

func (c *ConnectionController) statsTick() {
	if c.metrics != nil {
		stats := c.ts.Stats()
		c.metrics.RecordBufferStats(stats)

		health := c.health.Status().Load()
		c.metrics.RecordHealth(health, c.health.Metrics().HealthScore())
	}

	status := c.health.Status().Load()
	if status.Level != domain.HealthRecoveryNeeded {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Load().Phase != domain.PhaseStreaming {
		return
	}
	c.logger.Warnw("forcing recovery", "reason", status.Reason)
	if c.sessionCtx != nil {
		tracing.AddSpanEvent(c.sessionCtx, "forced_recovery")
	}
	// Consume the signal so the next tick does not force another
	// reconnect off the same crossing.
	c.health.AcknowledgeRecovery()
	c.publish(domain.ConnectionState{
		Phase: domain.PhaseError,
		Err:   domain.NewConnectionLost(status.Reason),
	})
	c.launchReconnectLocked()
}

// startPumpLocked launches the buffer pump: pulls raw audio from capture,
// synthesizes presentation timestamps, and forwards to the transport.
func (c *ConnectionController) startPumpLocked(ctx context.Context) {
	done := make(chan struct{})
	c.pumpDone = done

	captureCfg := c.capture.cfg
	go func() {
		defer close(done)

		size := c.capture.BufferSize()
		if size <= 0 {
			size = captureCfg.CalculateMinBufferSize()
		}
		buf := make([]byte, size)

		for ctx.Err() == nil {
			n, err := c.capture.Read(buf)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.health.ReportBufferUnderrun()
				if !sleepCtx(ctx, 10*time.Millisecond) {
					return
				}
				continue
			}

			pts := c.ts.CalculatePresentationTimeUs(n, captureCfg)
			if !c.transport.Connected() {
				continue
			}
			if err := c.transport.WriteSample(buf[:n], pts); err != nil {
				// Transport backpressure: data is being produced faster
				// than the network consumes it.
				c.health.ReportBufferOverflow()
			}
		}
	}()
}
