package validation

import (
	"strings"
	"testing"
)

func TestValidateIngestURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid wss", "wss://ingest.example.com/live", false},
		{"valid ws", "ws://localhost:8081/ws", false},
		{"empty", "", true},
		{"http scheme", "http://example.com/live", true},
		{"rtmp scheme", "rtmp://example.com/live", true},
		{"no host", "wss://", true},
		{"garbage", "://not-a-url", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIngestURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIngestURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		wantErr   bool
	}{
		{"valid uuid style", "9b2d6c1e-53a7-4f3a-9c1f-000000000000", false},
		{"valid simple", "session_42", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 101), true},
		{"invalid characters", "session 42!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionID(tt.sessionID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSessionID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBitrate(t *testing.T) {
	tests := []struct {
		name    string
		bitrate int
		wantErr bool
	}{
		{"valid standard", 128_000, false},
		{"valid minimum", 8_000, false},
		{"valid maximum", 512_000, false},
		{"too low", 7_999, true},
		{"too high", 512_001, true},
		{"zero", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBitrate(tt.bitrate)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBitrate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSampleRate(t *testing.T) {
	for _, rate := range []int{8000, 16000, 22050, 44100, 48000, 96000} {
		if err := ValidateSampleRate(rate); err != nil {
			t.Errorf("ValidateSampleRate(%d) unexpected error: %v", rate, err)
		}
	}
	for _, rate := range []int{0, -1, 44000, 11025} {
		if err := ValidateSampleRate(rate); err == nil {
			t.Errorf("ValidateSampleRate(%d) expected error", rate)
		}
	}
}

func TestValidateChannelCount(t *testing.T) {
	if err := ValidateChannelCount(1); err != nil {
		t.Errorf("mono should be valid: %v", err)
	}
	if err := ValidateChannelCount(2); err != nil {
		t.Errorf("stereo should be valid: %v", err)
	}
	if err := ValidateChannelCount(0); err == nil {
		t.Error("zero channels should be invalid")
	}
	if err := ValidateChannelCount(6); err == nil {
		t.Error("surround should be invalid")
	}
}

func TestValidateNonEmptyString(t *testing.T) {
	if err := ValidateNonEmptyString("value", "field"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateNonEmptyString("   ", "field"); err == nil {
		t.Error("whitespace-only string should be invalid")
	}
}

func TestValidateStringLength(t *testing.T) {
	if err := ValidateStringLength("abc", 1, 5, "field"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateStringLength("", 1, 5, "field"); err == nil {
		t.Error("too-short string should be invalid")
	}
	if err := ValidateStringLength("abcdef", 1, 5, "field"); err == nil {
		t.Error("too-long string should be invalid")
	}
}
