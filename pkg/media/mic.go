// Package media binds the live consultation to real capture and playback
// hardware: a malgo microphone source and an oto speaker sink.
package media

import (
	"io"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/ahouse2/financial-legal-analysis/pkg/audio"
	"github.com/ahouse2/financial-legal-analysis/pkg/core"
)

// Microphone captures 16kHz mono s16le audio from the default input device.
// It satisfies the live session's capture source. A Microphone is good for
// one session; open a new one per consultation.
type Microphone struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

// OpenMicrophone acquires the default capture device and starts it. Failure
// to acquire or start the device is reported as permission_denied, since on
// desktop platforms it most often means the OS refused microphone access.
func OpenMicrophone() (*Microphone, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	allocated, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, core.NewPermissionDeniedError("audio backend unavailable", err)
	}

	m := &Microphone{
		ctx: allocated,
		buf: make([]byte, 0, audio.CaptureSampleRateHz*audio.BytesPerSample),
	}
	m.cond = sync.NewCond(&m.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(audio.Channels)
	deviceConfig.SampleRate = uint32(audio.CaptureSampleRateHz)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.mu.Lock()
			if !m.closed {
				m.buf = append(m.buf, input...)
			}
			m.mu.Unlock()
			m.cond.Signal()
		},
	}

	device, err := malgo.InitDevice(allocated.Context, deviceConfig, callbacks)
	if err != nil {
		_ = allocated.Uninit()
		return nil, core.NewPermissionDeniedError("microphone access denied or unavailable", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = allocated.Uninit()
		return nil, core.NewPermissionDeniedError("microphone could not be started", err)
	}

	m.device = device
	return m, nil
}

// Read blocks until captured audio is available, then drains up to len(p)
// bytes of it. After Close it returns io.EOF.
func (m *Microphone) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.buf) == 0 && !m.closed {
		m.cond.Wait()
	}
	if m.closed && len(m.buf) == 0 {
		return 0, io.EOF
	}

	n := copy(p, m.buf)
	m.buf = m.buf[n:]
	return n, nil
}

// Close stops capture and releases the device. Idempotent.
func (m *Microphone) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()

	if m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
	}
	if m.ctx != nil {
		_ = m.ctx.Uninit()
	}
	return nil
}
