package domain

import "fmt"

// bufferSafetyFactor is the multiplier applied to the platform-reported
// minimum buffer size to absorb scheduling jitter without data loss.
const bufferSafetyFactor = 2.0

// SampleRateAuto requests hardware-rate auto-detection from the capture device.
const SampleRateAuto = 0

// CaptureConfig describes one audio capture session. Immutable once a session starts.
type CaptureConfig struct {
	SampleRateHz     int
	ChannelCount     int
	Bitrate          int
	BitsPerSample    int
	BufferDurationMs int
}

// DefaultCaptureConfig returns the capture parameters used for live push.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRateHz:     44100,
		ChannelCount:     2,
		Bitrate:          128_000,
		BitsPerSample:    16,
		BufferDurationMs: 20,
	}
}

// Validate checks that capture parameters are within acceptable ranges.
func (c CaptureConfig) Validate() error {
	if c.SampleRateHz <= 0 {
		return fmt.Errorf("sample rate must be > 0, got %d", c.SampleRateHz)
	}
	if c.ChannelCount != 1 && c.ChannelCount != 2 {
		return fmt.Errorf("channel count must be 1 or 2, got %d", c.ChannelCount)
	}
	if c.Bitrate <= 0 {
		return fmt.Errorf("bitrate must be > 0, got %d", c.Bitrate)
	}
	switch c.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("bits per sample must be 8, 16, 24 or 32, got %d", c.BitsPerSample)
	}
	if c.BufferDurationMs <= 0 {
		return fmt.Errorf("buffer duration must be > 0, got %d", c.BufferDurationMs)
	}
	return nil
}

// BytesPerFrame returns the size of one PCM frame across all channels.
func (c CaptureConfig) BytesPerFrame() int {
	return c.ChannelCount * c.BitsPerSample / 8
}

// CalculateBufferSize returns the nominal capture buffer size in bytes
// for one buffer duration at the configured rate.
func (c CaptureConfig) CalculateBufferSize() int {
	return c.SampleRateHz * c.BytesPerFrame() * c.BufferDurationMs / 1000
}

// CalculateMinBufferSize returns the buffer size with the safety factor
// applied. Always exactly 2x CalculateBufferSize.
func (c CaptureConfig) CalculateMinBufferSize() int {
	return int(float64(c.CalculateBufferSize()) * bufferSafetyFactor)
}
