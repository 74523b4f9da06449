package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureConfig_Validate(t *testing.T) {
	cfg := DefaultCaptureConfig()
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.ChannelCount = 5
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.BitsPerSample = 12
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.SampleRateHz = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.BufferDurationMs = -1
	assert.Error(t, bad.Validate())
}

func TestCaptureConfig_SafetyFactorLaw(t *testing.T) {
	configs := []CaptureConfig{
		DefaultCaptureConfig(),
		{SampleRateHz: 48000, ChannelCount: 1, Bitrate: 96_000, BitsPerSample: 16, BufferDurationMs: 10},
		{SampleRateHz: 16000, ChannelCount: 1, Bitrate: 32_000, BitsPerSample: 8, BufferDurationMs: 30},
		{SampleRateHz: 96000, ChannelCount: 2, Bitrate: 256_000, BitsPerSample: 24, BufferDurationMs: 50},
	}

	for _, cfg := range configs {
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, 2*cfg.CalculateBufferSize(), cfg.CalculateMinBufferSize(),
			"min buffer size must be exactly twice the nominal size for %+v", cfg)
	}
}

func TestCaptureConfig_BufferSize(t *testing.T) {
	cfg := DefaultCaptureConfig()
	// 44100Hz * 4 bytes/frame * 20ms = 3528 bytes
	assert.Equal(t, 3528, cfg.CalculateBufferSize())
	assert.Equal(t, 4, cfg.BytesPerFrame())
}
