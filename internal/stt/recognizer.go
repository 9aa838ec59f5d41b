// Package stt provides speech-to-text functionality using sherpa-onnx.
package stt

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/voicepulse/pulse-agent/internal/sherpa"
)

// VAD configuration constants for the optional speech gate.
const (
	// VADMinSpeechDuration is the minimum speech duration (in seconds) to count as speech.
	// Value of 0.1s keeps short utterances like "yes" or "no".
	VADMinSpeechDuration = 0.1

	// VADMinSilenceDuration splits segments on pauses longer than this (seconds).
	VADMinSilenceDuration = 0.5

	// VADMaxSpeechDuration forces segmentation of long utterances (seconds).
	VADMaxSpeechDuration = 30.0

	// VADWindowSize is the Silero window in samples (32ms at 16kHz).
	VADWindowSize = 512

	// VADBufferSize is the VAD buffer in seconds. Push-to-talk utterances
	// longer than this are truncated by the gate.
	VADBufferSize = 120.0
)

// ErrTranscribe reports a failed transcription.
var ErrTranscribe = errors.New("transcription failed")

// Recognizer transcribes utterances with Whisper. When a VAD model is
// configured, non-speech audio is trimmed before decoding and silent
// utterances skip Whisper entirely.
type Recognizer struct {
	cfg Config
	log *slog.Logger

	mu          sync.Mutex                           // sherpa objects are not thread-safe
	recognizers map[string]*sherpa.OfflineRecognizer // Keyed by language
	vad         *sherpa.VoiceActivityDetector
}

// Config holds STT configuration.
type Config struct {
	WhisperEncoder string
	WhisperDecoder string
	WhisperTokens  string
	VADModel       string  // Optional Silero VAD model; empty disables the gate
	VADThreshold   float32 // Speech probability threshold (0.0-1.0)
	SampleRate     int
	Language       string // Default language (e.g., "en", "es", "auto")
	Provider       string // Hardware acceleration provider (cpu, cuda, coreml)
	Threads        int
	Verbose        bool
	Logger         *slog.Logger
}

// NewRecognizer loads the Whisper model for the configured language and the
// optional VAD model.
func NewRecognizer(cfg *Config) (*Recognizer, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.VADThreshold <= 0 {
		cfg.VADThreshold = 0.5
	}

	r := &Recognizer{
		cfg:         *cfg,
		log:         log.With("component", "stt"),
		recognizers: make(map[string]*sherpa.OfflineRecognizer),
	}

	if _, err := r.recognizerFor(cfg.Language); err != nil {
		return nil, err
	}

	if cfg.VADModel != "" {
		vadConfig := &sherpa.VadModelConfig{}
		vadConfig.SileroVad.Model = cfg.VADModel
		vadConfig.SileroVad.Threshold = cfg.VADThreshold
		vadConfig.SileroVad.MinSilenceDuration = VADMinSilenceDuration
		vadConfig.SileroVad.MinSpeechDuration = VADMinSpeechDuration
		vadConfig.SileroVad.MaxSpeechDuration = VADMaxSpeechDuration
		vadConfig.SileroVad.WindowSize = VADWindowSize
		vadConfig.SampleRate = cfg.SampleRate
		vadConfig.NumThreads = 1
		if cfg.Verbose {
			vadConfig.Debug = 1
		}

		r.vad = sherpa.NewVoiceActivityDetector(vadConfig, VADBufferSize)
		if r.vad == nil {
			r.Close()
			return nil, fmt.Errorf("failed to create VAD")
		}
	}

	return r, nil
}

// recognizerFor returns the Whisper recognizer for language, loading it on
// first use. Caller must hold r.mu or be in the constructor.
func (r *Recognizer) recognizerFor(language string) (*sherpa.OfflineRecognizer, error) {
	// "auto" -> "" (empty triggers auto-detection in Whisper)
	if strings.EqualFold(language, "auto") {
		language = ""
	}
	if rec, ok := r.recognizers[language]; ok {
		return rec, nil
	}

	recognizerConfig := &sherpa.OfflineRecognizerConfig{}
	recognizerConfig.ModelConfig.Whisper.Encoder = r.cfg.WhisperEncoder
	recognizerConfig.ModelConfig.Whisper.Decoder = r.cfg.WhisperDecoder
	recognizerConfig.ModelConfig.Whisper.Language = language
	recognizerConfig.ModelConfig.Whisper.Task = "transcribe"
	recognizerConfig.ModelConfig.Whisper.TailPaddings = -1
	recognizerConfig.ModelConfig.Tokens = r.cfg.WhisperTokens
	recognizerConfig.ModelConfig.NumThreads = r.cfg.Threads
	recognizerConfig.ModelConfig.Provider = r.cfg.Provider
	recognizerConfig.DecodingMethod = "greedy_search"
	if r.cfg.Verbose {
		recognizerConfig.ModelConfig.Debug = 1
	}

	rec := sherpa.NewOfflineRecognizer(recognizerConfig)
	if rec == nil {
		return nil, fmt.Errorf("failed to create offline recognizer for language %q", language)
	}
	r.recognizers[language] = rec
	r.log.Debug("whisper model loaded", "language", language)
	return rec, nil
}

// Transcribe converts samples to text. Empty audio yields an empty transcript
// and no error.
func (r *Recognizer) Transcribe(samples []float32, language string) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	if language == "" {
		language = r.cfg.Language
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vad != nil {
		samples = r.speechOnly(samples)
		if len(samples) == 0 {
			r.log.Debug("no speech detected, skipping whisper")
			return "", nil
		}
	}

	rec, err := r.recognizerFor(language)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscribe, err)
	}

	if r.cfg.Verbose {
		duration := float32(len(samples)) / float32(r.cfg.SampleRate)
		r.log.Debug("processing speech", "seconds", duration)
	}

	stream := sherpa.NewOfflineStream(rec)
	if stream == nil {
		return "", fmt.Errorf("%w: failed to create offline stream", ErrTranscribe)
	}
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(r.cfg.SampleRate, samples)
	rec.Decode(stream)

	result := stream.GetResult()
	if result == nil {
		return "", fmt.Errorf("%w: no result", ErrTranscribe)
	}
	text := strings.TrimSpace(result.Text)
	r.log.Info("🗣️ You", "text", text)
	return text, nil
}

// speechOnly runs the VAD over samples and returns the concatenated speech
// segments. Caller must hold r.mu.
func (r *Recognizer) speechOnly(samples []float32) []float32 {
	r.vad.Clear()
	for start := 0; start < len(samples); start += VADWindowSize {
		end := min(start+VADWindowSize, len(samples))
		r.vad.AcceptWaveform(samples[start:end])
	}
	r.vad.Flush()

	var speech []float32
	for !r.vad.IsEmpty() {
		segment := r.vad.Front()
		speech = append(speech, segment.Samples...)
		r.vad.Pop()
	}
	return speech
}

// Close releases all resources.
func (r *Recognizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vad != nil {
		sherpa.DeleteVoiceActivityDetector(r.vad)
		r.vad = nil
	}
	for lang, rec := range r.recognizers {
		sherpa.DeleteOfflineRecognizer(rec)
		delete(r.recognizers, lang)
	}
}
