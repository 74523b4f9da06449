package ports

import "context"

// TransportCallbacks are invoked by the transport from its own goroutines.
// The controller maps them directly into connection-state transitions.
type TransportCallbacks struct {
	OnConnectionSuccess func()
	OnConnectionFailed  func(reason string)
	OnDisconnect        func()
	OnNewBitrate        func(bitrateKbps int)
	OnLatency           func(latencyMs float64)
}

// Transport is the network push boundary (RTMP/WebRTC client).
type Transport interface {
	// SetCallbacks must be called before Start.
	SetCallbacks(cb TransportCallbacks)

	// Start connects to the ingest endpoint. Connection outcome is
	// reported asynchronously through the callbacks.
	Start(ctx context.Context, url string) error

	// Stop tears down the connection. Safe to call when not connected.
	Stop() error

	Connected() bool

	// WriteSample pushes one timestamped encoded audio frame.
	WriteSample(data []byte, ptsUs int64) error
}
