package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioMicrophone captures from the default input device through a
// blocking PortAudio stream.
type PortAudioMicrophone struct {
	sampleRate int
	frameSize  int

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16 // Bound to the stream; refilled by every Read
}

// NewPortAudioMicrophone initializes PortAudio. Call Terminate when done.
func NewPortAudioMicrophone(sampleRate, frameSize int) (*PortAudioMicrophone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &PortAudioMicrophone{
		sampleRate: sampleRate,
		frameSize:  frameSize,
	}, nil
}

// Open starts a mono 16-bit input stream on the default device.
func (m *PortAudioMicrophone) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return nil
	}

	buf := make([]int16, m.frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("open stream failed: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("start stream failed: %w", err)
	}

	m.stream = stream
	m.buf = buf
	return nil
}

// Read blocks for one stream buffer and copies it into frame. Input overflow
// is not an error: the buffer still holds valid audio.
func (m *PortAudioMicrophone) Read(frame []int16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return fmt.Errorf("%w: stream not open", ErrDevice)
	}
	if err := m.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return err
	}
	copy(frame, m.buf)
	return nil
}

// Close stops and closes the stream, releasing the device.
func (m *PortAudioMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return nil
	}
	stopErr := m.stream.Stop()
	closeErr := m.stream.Close()
	m.stream = nil
	m.buf = nil
	return errors.Join(stopErr, closeErr)
}

// Terminate shuts PortAudio down.
func (m *PortAudioMicrophone) Terminate() {
	_ = m.Close()
	_ = portaudio.Terminate()
}
