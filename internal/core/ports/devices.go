package ports

// CaptureDevice is the platform audio capture API boundary.
type CaptureDevice interface {
	// HasPermission reports whether the record-audio capability is granted.
	HasPermission() bool

	// SupportsAutoRate reports whether the platform can auto-detect the
	// hardware sample rate when opened with the auto-rate sentinel.
	SupportsAutoRate() bool

	// MinBufferSize returns the minimum buffer size in bytes required for
	// the given parameters. Returns an error for invalid configurations.
	MinBufferSize(sampleRateHz, channelCount, bitsPerSample int) (int, error)

	// Open allocates a capture handle. sampleRateHz may be the auto-rate
	// sentinel (0) when SupportsAutoRate is true.
	Open(sampleRateHz, channelCount, bufferSizeBytes int) (CaptureHandle, error)
}

// CaptureHandle is an open hardware capture source. Owned exclusively by
// the capture lifecycle manager.
type CaptureHandle interface {
	// SampleRate returns the rate the hardware actually runs at.
	SampleRate() int

	StartRecording() error
	Stop() error
	IsRecording() bool

	// Read fills p with raw PCM and returns the number of bytes read.
	Read(p []byte) (int, error)

	// Release frees the hardware resource. Safe to call more than once.
	Release() error
}

// BufferInfo carries encoder output buffer metadata. The synthesizer
// assigns PresentationTimeUs before the buffer is forwarded downstream.
type BufferInfo struct {
	Offset             int
	Size               int
	PresentationTimeUs int64
	Flags              int
}

// EncoderBuffers is the hardware encoder buffer-pool boundary. Every
// buffer obtained by ID must be released exactly once.
type EncoderBuffers interface {
	GetOutputBuffer(bufferID int) ([]byte, error)
	ReleaseOutputBuffer(bufferID int) error
}
