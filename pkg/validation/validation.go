package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// SessionIDRegex validates session identifier format
var SessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateIngestURL validates the streaming ingest endpoint URL
func ValidateIngestURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("ingest URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid ingest URL format: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid ingest URL scheme (must be ws or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("ingest URL must have a host")
	}
	return nil
}

// ValidateSessionID validates session identifier
func ValidateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if len(sessionID) > 100 {
		return fmt.Errorf("session ID is too long (max 100 characters)")
	}
	if !SessionIDRegex.MatchString(sessionID) {
		return fmt.Errorf("invalid session ID format")
	}
	return nil
}

// ValidateBitrate validates audio bitrate in bits per second
func ValidateBitrate(bitrate int) error {
	if bitrate < 8_000 {
		return fmt.Errorf("bitrate must be at least 8000 bps")
	}
	if bitrate > 512_000 {
		return fmt.Errorf("bitrate is too high (max 512000 bps)")
	}
	return nil
}

// ValidateSampleRate validates audio sample rate
func ValidateSampleRate(sampleRateHz int) error {
	switch sampleRateHz {
	case 8000, 16000, 22050, 44100, 48000, 96000:
		return nil
	default:
		return fmt.Errorf("unsupported sample rate %d Hz", sampleRateHz)
	}
}

// ValidateChannelCount validates audio channel count
func ValidateChannelCount(channels int) error {
	if channels != 1 && channels != 2 {
		return fmt.Errorf("channel count must be 1 or 2")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
