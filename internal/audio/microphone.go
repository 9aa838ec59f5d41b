package audio

import (
	"fmt"
	"log/slog"
)

// Capture backends.
const (
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
)

// NewMicrophone creates the capture backend by name. The returned function
// releases the backend and must be called on shutdown.
func NewMicrophone(backend string, sampleRate, frameSize int, log *slog.Logger) (Microphone, func(), error) {
	switch backend {
	case "", BackendPortAudio:
		m, err := NewPortAudioMicrophone(sampleRate, frameSize)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Terminate, nil
	case BackendMalgo:
		m, err := NewMalgoMicrophone(sampleRate, log)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Terminate, nil
	default:
		return nil, nil, fmt.Errorf("unknown audio backend: %s (must be '%s' or '%s')", backend, BackendPortAudio, BackendMalgo)
	}
}
