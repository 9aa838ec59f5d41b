//go:build linux

// Package sherpa re-exports the platform-specific sherpa-onnx bindings so the
// rest of the module can stay platform neutral.
//
// The pre-built sherpa-onnx-go-linux package is CPU-only; CUDA needs a
// from-source build of sherpa-onnx.
package sherpa

import (
	"os"
	"strings"

	impl "github.com/k2-fsa/sherpa-onnx-go-linux"
)

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

// DefaultProvider returns "cuda" when an NVIDIA GPU is present, otherwise "cpu".
func DefaultProvider() string {
	if hasNvidiaGPU() {
		return "cuda"
	}
	return "cpu"
}

// hasNvidiaGPU checks for discrete NVIDIA GPUs and Jetson SOC devices.
func hasNvidiaGPU() bool {
	indicators := []string{
		"/usr/bin/nvidia-smi",
		"/usr/local/bin/nvidia-smi",
		"/dev/nvidia0",
		"/dev/nvhost-gpu",       // Jetson GPU device
		"/dev/nvmap",            // Jetson memory mapping
		"/etc/nv_tegra_release", // Jetson L4T release file
	}
	for _, path := range indicators {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}

	if data, err := os.ReadFile("/proc/device-tree/compatible"); err == nil {
		compatible := string(data)
		return strings.Contains(compatible, "nvidia,tegra") || strings.Contains(compatible, "nvidia,jetson")
	}
	return false
}
