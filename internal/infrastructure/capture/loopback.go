package capture

import (
	"fmt"
	"math"
	"sync"
	"time"

	"livepush/internal/core/ports"

	"go.uber.org/zap"
)

// LoopbackDevice is a software capture source producing a paced sine
// tone. It stands in for platform microphone APIs in headless and test
// deployments.
type LoopbackDevice struct {
	logger *zap.SugaredLogger

	// ToneHz is the generated test tone frequency.
	ToneHz float64

	// NativeRate is reported when opened with the auto-rate sentinel.
	NativeRate int

	// DenyPermission simulates a revoked microphone permission.
	DenyPermission bool
}

func NewLoopbackDevice(logger *zap.SugaredLogger) *LoopbackDevice {
	return &LoopbackDevice{
		logger:     logger,
		ToneHz:     440,
		NativeRate: 48000,
	}
}

func (d *LoopbackDevice) HasPermission() bool {
	return !d.DenyPermission
}

func (d *LoopbackDevice) SupportsAutoRate() bool {
	return true
}

func (d *LoopbackDevice) MinBufferSize(sampleRateHz, channelCount, bitsPerSample int) (int, error) {
	if sampleRateHz <= 0 || channelCount <= 0 || bitsPerSample <= 0 {
		return 0, fmt.Errorf("invalid capture parameters: rate=%d channels=%d bits=%d",
			sampleRateHz, channelCount, bitsPerSample)
	}
	// 20ms worth of frames, matching typical hardware minimums.
	bytesPerFrame := channelCount * bitsPerSample / 8
	return sampleRateHz * bytesPerFrame * 20 / 1000, nil
}

func (d *LoopbackDevice) Open(sampleRateHz, channelCount, bufferSizeBytes int) (ports.CaptureHandle, error) {
	if bufferSizeBytes <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", bufferSizeBytes)
	}
	rate := sampleRateHz
	if rate == 0 {
		rate = d.NativeRate
	}

	d.logger.Infow("loopback capture opened",
		"sample_rate", rate,
		"channels", channelCount,
		"buffer_size", bufferSizeBytes,
	)

	return &loopbackHandle{
		rate:     rate,
		channels: channelCount,
		toneHz:   d.ToneHz,
	}, nil
}

type loopbackHandle struct {
	rate     int
	channels int
	toneHz   float64

	mu        sync.Mutex
	recording bool
	released  bool
	phase     float64
	lastRead  time.Time
}

func (h *loopbackHandle) SampleRate() int {
	return h.rate
}

func (h *loopbackHandle) StartRecording() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return fmt.Errorf("capture handle released")
	}
	h.recording = true
	h.lastRead = time.Now()
	return nil
}

func (h *loopbackHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recording = false
	return nil
}

func (h *loopbackHandle) IsRecording() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recording
}

// Read fills p with 16-bit little-endian PCM of the test tone, pacing the
// caller so bytes flow at the real sample rate.
func (h *loopbackHandle) Read(p []byte) (int, error) {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return 0, fmt.Errorf("capture handle released")
	}
	if !h.recording {
		h.mu.Unlock()
		return 0, fmt.Errorf("capture not recording")
	}

	bytesPerFrame := h.channels * 2
	frames := len(p) / bytesPerFrame
	step := 2 * math.Pi * h.toneHz / float64(h.rate)

	for i := 0; i < frames; i++ {
		sample := int16(math.Sin(h.phase) * 0.25 * math.MaxInt16)
		h.phase += step
		if h.phase > 2*math.Pi {
			h.phase -= 2 * math.Pi
		}
		for ch := 0; ch < h.channels; ch++ {
			off := (i*h.channels + ch) * 2
			p[off] = byte(sample)
			p[off+1] = byte(sample >> 8)
		}
	}

	// Pace to real time: sleep off whatever the buffer duration exceeds
	// the time elapsed since the previous read.
	bufDuration := time.Duration(frames) * time.Second / time.Duration(h.rate)
	elapsed := time.Since(h.lastRead)
	h.lastRead = time.Now()
	h.mu.Unlock()

	if sleep := bufDuration - elapsed; sleep > 0 {
		time.Sleep(sleep)
	}
	return frames * bytesPerFrame, nil
}

func (h *loopbackHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recording = false
	h.released = true
	return nil
}
