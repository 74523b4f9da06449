package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"livepush/internal/core/domain"
	"livepush/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDevice struct {
	mu         sync.Mutex
	permission bool
	autoRate   bool
	minSize    int
	minErr     error
	failOpens  int
	opened     []*fakeHandle
	openRates  []int
}

func (d *fakeDevice) HasPermission() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.permission
}

func (d *fakeDevice) SupportsAutoRate() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.autoRate
}

func (d *fakeDevice) MinBufferSize(sampleRateHz, channelCount, bitsPerSample int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.minErr != nil {
		return 0, d.minErr
	}
	return d.minSize, nil
}

func (d *fakeDevice) Open(sampleRateHz, channelCount, bufferSizeBytes int) (ports.CaptureHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openRates = append(d.openRates, sampleRateHz)
	if d.failOpens > 0 {
		d.failOpens--
		return nil, errors.New("device busy")
	}
	rate := sampleRateHz
	if rate == domain.SampleRateAuto {
		rate = 48000
	}
	h := &fakeHandle{rate: rate}
	d.opened = append(d.opened, h)
	return h, nil
}

type fakeHandle struct {
	mu        sync.Mutex
	rate      int
	recording bool
	releases  int
	readErr   error
}

func (h *fakeHandle) SampleRate() int {
	return h.rate
}

func (h *fakeHandle) StartRecording() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recording = true
	return nil
}

func (h *fakeHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recording = false
	return nil
}

func (h *fakeHandle) IsRecording() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recording
}

func (h *fakeHandle) Read(p []byte) (int, error) {
	h.mu.Lock()
	err := h.readErr
	h.mu.Unlock()
	if err != nil {
		return 0, err
	}
	time.Sleep(time.Millisecond)
	return len(p), nil
}

func (h *fakeHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releases++
	return nil
}

func newTestCaptureManager(dev *fakeDevice) *CaptureLifecycleManager {
	return NewCaptureLifecycleManager(dev, domain.DefaultCaptureConfig(), 10*time.Millisecond, zap.NewNop().Sugar())
}

func TestInitialize_OpensDeviceWithDoubledBuffer(t *testing.T) {
	dev := &fakeDevice{permission: true, minSize: 1764}
	m := newTestCaptureManager(dev)

	require.True(t, m.Initialize())

	status := m.Status().Load()
	assert.Equal(t, domain.CaptureInitialized, status.State)
	assert.Equal(t, 44100, status.SampleRate)
	assert.Equal(t, 3528, status.BufferSize)

	health := m.BufferHealth().Load()
	assert.Equal(t, 3528, health.BufferSize)
	assert.Equal(t, 1764, health.MinBufferSize)
	assert.False(t, health.Recording)
}

func TestInitialize_PermissionDenied(t *testing.T) {
	dev := &fakeDevice{permission: false}
	m := newTestCaptureManager(dev)

	require.False(t, m.Initialize())

	status := m.Status().Load()
	assert.Equal(t, domain.CaptureError, status.State)
	assert.Equal(t, msgPermissionDenied, status.Message)
}

func TestInitialize_MinBufferQueryFailure(t *testing.T) {
	dev := &fakeDevice{permission: true, minErr: errors.New("bad params")}
	m := newTestCaptureManager(dev)

	require.False(t, m.Initialize())
	assert.Equal(t, msgInvalidConfig, m.Status().Load().Message)
}

func TestInitialize_OpenFailure(t *testing.T) {
	dev := &fakeDevice{permission: true, minSize: 1764, failOpens: 99}
	m := newTestCaptureManager(dev)

	require.False(t, m.Initialize())
	assert.Equal(t, msgInitFailed, m.Status().Load().Message)
}

func TestInitialize_PrefersAutoRate(t *testing.T) {
	dev := &fakeDevice{permission: true, autoRate: true, minSize: 1764}
	m := newTestCaptureManager(dev)

	require.True(t, m.Initialize())
	require.Len(t, dev.openRates, 1)
	assert.Equal(t, domain.SampleRateAuto, dev.openRates[0])
	assert.Equal(t, 48000, m.Status().Load().SampleRate)
}

func TestInitialize_ReleasesPriorHandle(t *testing.T) {
	dev := &fakeDevice{permission: true, minSize: 1764}
	m := newTestCaptureManager(dev)

	require.True(t, m.Initialize())
	require.True(t, m.Initialize())

	require.Len(t, dev.opened, 2)
	assert.Equal(t, 1, dev.opened[0].releases)
	assert.Equal(t, 0, dev.opened[1].releases)
}

func TestStartRecording_AutoInitializesWithRetry(t *testing.T) {
	dev := &fakeDevice{permission: true, minSize: 1764, failOpens: 1}
	m := newTestCaptureManager(dev)
	m.retryCfg.InitialDelay = time.Millisecond
	m.retryCfg.MaxDelay = time.Millisecond
	defer m.Release()

	require.True(t, m.StartRecording())

	status := m.Status().Load()
	assert.Equal(t, domain.CaptureRecording, status.State)
	require.Len(t, dev.opened, 1)
	assert.True(t, dev.opened[0].IsRecording())
	assert.True(t, m.BufferHealth().Load().Recording)
}

func TestStopRecording_ReturnsToInitialized(t *testing.T) {
	dev := &fakeDevice{permission: true, minSize: 1764}
	m := newTestCaptureManager(dev)
	defer m.Release()

	require.True(t, m.StartRecording())
	m.StopRecording()

	assert.Equal(t, domain.CaptureInitialized, m.Status().Load().State)
	assert.False(t, dev.opened[0].IsRecording())
	assert.False(t, m.BufferHealth().Load().Recording)
}

func TestRelease_IsIdempotent(t *testing.T) {
	dev := &fakeDevice{permission: true, minSize: 1764}
	m := newTestCaptureManager(dev)

	require.True(t, m.StartRecording())
	m.Release()
	m.Release()

	assert.Equal(t, 1, dev.opened[0].releases)
	assert.Equal(t, domain.CaptureIdle, m.Status().Load().State)
	assert.Equal(t, domain.BufferHealth{}, m.BufferHealth().Load())
	assert.Equal(t, 0, m.BufferSize())
}

func TestRead_RequiresInitialization(t *testing.T) {
	dev := &fakeDevice{permission: true, minSize: 1764}
	m := newTestCaptureManager(dev)

	buf := make([]byte, 64)
	_, err := m.Read(buf)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	require.True(t, m.Initialize())
	defer m.Release()
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 64, n)
}
