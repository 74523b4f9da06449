package services

import (
	"sync"
	"time"

	"livepush/internal/core/domain"
	"livepush/internal/core/ports"

	"go.uber.org/zap"
)

// TimestampSynthesizer produces strictly increasing presentation
// timestamps for encoder input and guarantees encoder buffer release.
// Calls must be serialized per session; Reset must not run while a
// buffer-processing call is in flight. An internal mutex enforces both.
type TimestampSynthesizer struct {
	logger *zap.SugaredLogger

	mu            sync.Mutex
	epoch         time.Time
	baseUs        int64
	accumulatedUs int64
	lastUs        int64
	stats         domain.BufferStats
}

func NewTimestampSynthesizer(logger *zap.SugaredLogger) *TimestampSynthesizer {
	return &TimestampSynthesizer{
		logger: logger,
		epoch:  time.Now(),
	}
}

// nowUs reads the monotonic clock in microseconds.
func (t *TimestampSynthesizer) nowUs() int64 {
	return time.Since(t.epoch).Microseconds()
}

// Reset re-anchors the timestamp base to the current monotonic clock and
// zeroes the accumulated duration and buffer statistics. Call exactly once
// per new streaming session, before the first buffer.
func (t *TimestampSynthesizer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.baseUs = t.nowUs()
	t.accumulatedUs = 0
	t.lastUs = 0
	t.stats = domain.BufferStats{}
}

// CalculatePresentationTimeUs returns the presentation timestamp for a
// buffer of the given size. The returned value is strictly greater than
// the previous one within a session, even for zero-size buffers.
func (t *TimestampSynthesizer) CalculatePresentationTimeUs(bufferSizeBytes int, cfg domain.CaptureConfig) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextLocked(bufferSizeBytes, cfg)
}

func (t *TimestampSynthesizer) nextLocked(bufferSizeBytes int, cfg domain.CaptureConfig) int64 {
	var sampleCount int64
	if frame := cfg.BytesPerFrame(); frame > 0 {
		sampleCount = int64(bufferSizeBytes / frame)
	}

	var durationUs int64
	if cfg.SampleRateHz > 0 {
		durationUs = sampleCount * 1_000_000 / int64(cfg.SampleRateHz)
	}

	candidate := t.baseUs + t.accumulatedUs
	t.accumulatedUs += durationUs

	// Guarantees strict monotonicity for zero-size or irregular buffers.
	if candidate <= t.lastUs {
		candidate = t.lastUs + 1
	}
	t.lastUs = candidate
	t.stats.LastPresentationTimeUs = candidate
	return candidate
}

// ProcessAndReleaseBuffer copies the encoder output buffer, stamps the
// presentation time into info, and releases the buffer identified by
// bufferID. The release runs unconditionally: on real hardware, skipping
// it repeatedly exhausts the encoder buffer pool and crashes the pipeline
// after tens of minutes. Failures are counted, never propagated; returns
// nil on failure.
func (t *TimestampSynthesizer) ProcessAndReleaseBuffer(enc ports.EncoderBuffers, bufferID int, info *ports.BufferInfo, cfg domain.CaptureConfig) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Release is structurally separated from the copy path so that no
	// error between here and the return can skip it.
	defer func() {
		if err := enc.ReleaseOutputBuffer(bufferID); err != nil {
			t.stats.ReleaseErrors++
			t.logger.Warnw("failed to release encoder buffer",
				"buffer_id", bufferID,
				"error", err,
			)
		}
	}()

	t.stats.TotalBuffersProcessed++

	src, err := enc.GetOutputBuffer(bufferID)
	if err != nil {
		t.stats.BufferErrors++
		t.logger.Warnw("failed to get encoder output buffer",
			"buffer_id", bufferID,
			"error", err,
		)
		return nil
	}

	if info.Offset < 0 || info.Size < 0 || info.Offset+info.Size > len(src) {
		t.stats.BufferErrors++
		t.logger.Warnw("encoder buffer info out of range",
			"buffer_id", bufferID,
			"offset", info.Offset,
			"size", info.Size,
			"buffer_len", len(src),
		)
		return nil
	}

	out := make([]byte, info.Size)
	copy(out, src[info.Offset:info.Offset+info.Size])

	info.PresentationTimeUs = t.nextLocked(info.Size, cfg)
	t.stats.TotalBytesProcessed += int64(info.Size)
	return out
}

// Stats returns a copy of the accumulated buffer statistics.
func (t *TimestampSynthesizer) Stats() domain.BufferStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
