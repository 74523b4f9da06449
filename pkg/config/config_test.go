package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got: %v", err)
	}
}

func TestValidate_AudioFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audio.ChannelCount = 3
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for channel_count=3, got nil")
	}

	cfg = DefaultConfig()
	cfg.Audio.BitsPerSample = 12
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for bits_per_sample=12, got nil")
	}

	cfg = DefaultConfig()
	cfg.Audio.SampleRateHz = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for sample_rate_hz=0, got nil")
	}
}

func TestValidate_ReconnectFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reconnect.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for max_attempts=0, got nil")
	}

	cfg = DefaultConfig()
	cfg.Reconnect.MaxDelay = cfg.Reconnect.BaseDelay - time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for max_delay < base_delay, got nil")
	}
}

func TestValidate_AuthRequiresSecretWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.JWTSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when auth enabled without secret, got nil")
	}

	cfg.Auth.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config with secret, got: %v", err)
	}
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 0
	cfg.RateLimiting.Burst = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("expected defaults for missing file, got: %v", err)
	}
	if cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("expected default max_attempts=5, got: %d", cfg.Reconnect.MaxAttempts)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
audio:
  sample_rate_hz: 48000
  channel_count: 1
reconnect:
  max_attempts: 7
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected load to succeed, got: %v", err)
	}
	if cfg.Audio.SampleRateHz != 48000 {
		t.Errorf("expected sample_rate_hz=48000, got: %d", cfg.Audio.SampleRateHz)
	}
	if cfg.Audio.ChannelCount != 1 {
		t.Errorf("expected channel_count=1, got: %d", cfg.Audio.ChannelCount)
	}
	if cfg.Reconnect.MaxAttempts != 7 {
		t.Errorf("expected max_attempts=7, got: %d", cfg.Reconnect.MaxAttempts)
	}
	// Untouched sections keep defaults
	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default server address, got: %s", cfg.Server.Address)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LIVEPUSH_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected env override to debug, got: %s", cfg.Logging.Level)
	}
}
