//go:build darwin

// Package sherpa re-exports the platform-specific sherpa-onnx bindings so the
// rest of the module can stay platform neutral. On macOS CoreML is available.
package sherpa

import impl "github.com/k2-fsa/sherpa-onnx-go-macos"

// VAD

type VoiceActivityDetector = impl.VoiceActivityDetector
type VadModelConfig = impl.VadModelConfig

// Offline recognizer (Whisper)

type OfflineRecognizer = impl.OfflineRecognizer
type OfflineRecognizerConfig = impl.OfflineRecognizerConfig
type OfflineStream = impl.OfflineStream

// TTS (Kokoro)

type OfflineTts = impl.OfflineTts
type OfflineTtsConfig = impl.OfflineTtsConfig

var (
	NewVoiceActivityDetector    = impl.NewVoiceActivityDetector
	DeleteVoiceActivityDetector = impl.DeleteVoiceActivityDetector

	NewOfflineRecognizer    = impl.NewOfflineRecognizer
	DeleteOfflineRecognizer = impl.DeleteOfflineRecognizer
	NewOfflineStream        = impl.NewOfflineStream
	DeleteOfflineStream     = impl.DeleteOfflineStream

	NewOfflineTts    = impl.NewOfflineTts
	DeleteOfflineTts = impl.DeleteOfflineTts
)

// DefaultProvider returns the recommended provider for this platform.
func DefaultProvider() string {
	return "coreml"
}
