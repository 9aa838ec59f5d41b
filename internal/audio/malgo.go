package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

const (
	// chunkQueueSize is the number of callback chunks buffered between the
	// audio thread and Read. At 32ms periods this is about 4 seconds.
	chunkQueueSize = 128

	// readTimeout bounds a single Read so a stalled device cannot hang the
	// recorder.
	readTimeout = time.Second
)

// MalgoMicrophone captures through miniaudio. The device runs at the requested
// sample rate; miniaudio converts from the hardware rate when they differ.
type MalgoMicrophone struct {
	ctx        *malgo.AllocatedContext
	sampleRate uint32
	log        *slog.Logger

	mu        sync.Mutex
	device    *malgo.Device
	chunks    chan []int16
	pending   []int16 // Leftover samples from the last chunk
	dropCount atomic.Uint64
}

// NewMalgoMicrophone initializes a miniaudio context. Call Terminate when done.
func NewMalgoMicrophone(sampleRate int, log *slog.Logger) (*MalgoMicrophone, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &MalgoMicrophone{
		ctx:        ctx,
		sampleRate: uint32(sampleRate),
		log:        log,
	}, nil
}

// Open initializes and starts the default capture device.
func (m *MalgoMicrophone) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return nil
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = m.sampleRate
	deviceConfig.PeriodSizeInMilliseconds = 32

	chunks := make(chan []int16, chunkQueueSize)

	// Runs on the audio thread: convert and hand off without blocking.
	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		samples := make([]int16, len(pInputSamples)/2)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(pInputSamples[i*2:]))
		}
		select {
		case chunks <- samples:
		default:
			if count := m.dropCount.Add(1); count%100 == 0 {
				m.log.Warn("⚠️  Capture queue full", "dropped", count)
			}
		}
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	m.device = device
	m.chunks = chunks
	m.pending = nil
	return nil
}

// Read fills frame from the callback chunks, blocking until enough samples
// have arrived.
func (m *MalgoMicrophone) Read(frame []int16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return fmt.Errorf("%w: device not open", ErrDevice)
	}

	timer := time.NewTimer(readTimeout)
	defer timer.Stop()

	n := copy(frame, m.pending)
	m.pending = m.pending[n:]
	for n < len(frame) {
		select {
		case chunk := <-m.chunks:
			c := copy(frame[n:], chunk)
			n += c
			m.pending = chunk[c:]
		case <-timer.C:
			return fmt.Errorf("%w: no audio for %v", ErrDevice, readTimeout)
		}
	}
	return nil
}

// Close stops the device and discards buffered audio.
func (m *MalgoMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return nil
	}
	err := m.device.Stop()
	m.device.Uninit()
	m.device = nil
	m.chunks = nil
	m.pending = nil
	return err
}

// Terminate releases the miniaudio context.
func (m *MalgoMicrophone) Terminate() {
	_ = m.Close()
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
}
