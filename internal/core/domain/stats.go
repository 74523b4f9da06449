package domain

// BufferStats accumulates per-session counters for the encoder buffer
// pipeline. Mutated only by the timestamp synthesizer.
type BufferStats struct {
	TotalBuffersProcessed  int64
	TotalBytesProcessed    int64
	BufferErrors           int64
	ReleaseErrors          int64
	LastPresentationTimeUs int64
}

// AverageBufferSize returns the mean buffer size in bytes, 0 when no
// buffers have been processed.
func (s BufferStats) AverageBufferSize() float64 {
	if s.TotalBuffersProcessed == 0 {
		return 0
	}
	return float64(s.TotalBytesProcessed) / float64(s.TotalBuffersProcessed)
}

// ErrorRate returns the fraction of processed buffers that failed either
// copy or release, 0 when no buffers have been processed.
func (s BufferStats) ErrorRate() float64 {
	if s.TotalBuffersProcessed == 0 {
		return 0
	}
	return float64(s.BufferErrors+s.ReleaseErrors) / float64(s.TotalBuffersProcessed)
}
