package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotInitialized   = errors.New("capture not initialized")
	ErrAlreadyRecording = errors.New("already recording")
	ErrSessionNotFound  = errors.New("session not found")
)

// ErrorKind classifies user-facing streaming errors.
type ErrorKind string

const (
	ErrConnectionFailed    ErrorKind = "CONNECTION_FAILED"
	ErrConnectionTimeout   ErrorKind = "CONNECTION_TIMEOUT"
	ErrConnectionLost      ErrorKind = "CONNECTION_LOST"
	ErrEncoderNotSupported ErrorKind = "ENCODER_NOT_SUPPORTED"
	ErrEncoderConfigFailed ErrorKind = "ENCODER_CONFIG_FAILED"
	ErrCameraNotAvailable  ErrorKind = "CAMERA_NOT_AVAILABLE"
	ErrMicNotAvailable     ErrorKind = "MICROPHONE_NOT_AVAILABLE"
	ErrPermissionDenied    ErrorKind = "PERMISSION_DENIED"
	ErrNetworkUnavailable  ErrorKind = "NETWORK_UNAVAILABLE"
	ErrServerError         ErrorKind = "SERVER_ERROR"
	ErrSignalingFailed     ErrorKind = "SIGNALING_FAILED"
	ErrIceFailed           ErrorKind = "ICE_FAILED"
)

// StreamError is the closed set of errors surfaced to the presentation
// layer. Payload fields are meaningful only for the kinds that carry them.
type StreamError struct {
	Kind       ErrorKind
	Reason     string        // ConnectionFailed, ConnectionLost, EncoderConfigFailed, SignalingFailed, IceFailed
	Timeout    time.Duration // ConnectionTimeout
	Codec      string        // EncoderNotSupported
	Permission string        // PermissionDenied
	Code       int           // ServerError
}

func (e *StreamError) Error() string {
	switch {
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case e.Kind == ErrConnectionTimeout:
		return fmt.Sprintf("%s: after %s", e.Kind, e.Timeout)
	case e.Kind == ErrEncoderNotSupported:
		return fmt.Sprintf("%s: %s", e.Kind, e.Codec)
	case e.Kind == ErrPermissionDenied:
		return fmt.Sprintf("%s: %s", e.Kind, e.Permission)
	case e.Kind == ErrServerError:
		return fmt.Sprintf("%s: code %d", e.Kind, e.Code)
	default:
		return string(e.Kind)
	}
}

func NewConnectionFailed(reason string) *StreamError {
	return &StreamError{Kind: ErrConnectionFailed, Reason: reason}
}

func NewConnectionTimeout(timeout time.Duration) *StreamError {
	return &StreamError{Kind: ErrConnectionTimeout, Timeout: timeout}
}

func NewConnectionLost(reason string) *StreamError {
	return &StreamError{Kind: ErrConnectionLost, Reason: reason}
}

func NewEncoderNotSupported(codec string) *StreamError {
	return &StreamError{Kind: ErrEncoderNotSupported, Codec: codec}
}

func NewEncoderConfigFailed(reason string) *StreamError {
	return &StreamError{Kind: ErrEncoderConfigFailed, Reason: reason}
}

func NewPermissionDenied(permission string) *StreamError {
	return &StreamError{Kind: ErrPermissionDenied, Permission: permission}
}

func NewServerError(code int, message string) *StreamError {
	return &StreamError{Kind: ErrServerError, Code: code, Reason: message}
}

func NewSignalingFailed(reason string) *StreamError {
	return &StreamError{Kind: ErrSignalingFailed, Reason: reason}
}

func NewIceFailed(reason string) *StreamError {
	return &StreamError{Kind: ErrIceFailed, Reason: reason}
}
