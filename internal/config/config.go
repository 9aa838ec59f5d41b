// Package config loads the voice loop configuration from YAML, the
// environment and command-line flags.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/voicepulse/pulse-agent/internal/audio"
	"github.com/voicepulse/pulse-agent/internal/input"
	"github.com/voicepulse/pulse-agent/internal/pulse"
	"github.com/voicepulse/pulse-agent/internal/sherpa"
	"github.com/voicepulse/pulse-agent/internal/tts"
	"github.com/voicepulse/pulse-agent/internal/visual"
)

// ErrConfig marks missing, unreadable or invalid configuration.
var ErrConfig = errors.New("configuration error")

// DefaultPath is the configuration file used when -config is not given.
const DefaultPath = "config/config.yaml"

// Speech backends.
const (
	SpeakerSay    = "say"
	SpeakerKokoro = "kokoro"
)

// Config holds all configuration for the voice loop.
type Config struct {
	Ollama       OllamaConfig       `yaml:"ollama"`
	Whisper      WhisperConfig      `yaml:"whisperRecognition"`
	Conversation ConversationConfig `yaml:"conversation"`
	Pulse        PulseConfig        `yaml:"pulse"`
	Audio        AudioConfig        `yaml:"audio"`
	Input        InputConfig        `yaml:"input"`
	Visualizer   VisualizerConfig   `yaml:"visualizer"`
	Log          LogConfig          `yaml:"log"`

	// Command-line only
	Path       string `yaml:"-"`
	Verbose    bool   `yaml:"-"`
	ListVoices bool   `yaml:"-"`
	VoiceInfo  string `yaml:"-"`
}

// OllamaConfig selects the language model backend.
type OllamaConfig struct {
	Model          string  `yaml:"model"`
	URL            string  `yaml:"url"`
	SystemPrompt   string  `yaml:"systemPrompt"`
	Temperature    float32 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeoutSeconds"`
}

// WhisperConfig locates the speech recognition models.
type WhisperConfig struct {
	ModelPath    string  `yaml:"modelPath"`
	Variant      string  `yaml:"variant"` // tiny, base, small, medium...
	Lang         string  `yaml:"lang"`
	VADModelPath string  `yaml:"vadModelPath"` // Optional silence trimming
	VADThreshold float32 `yaml:"vadThreshold"`
	Threads      int     `yaml:"threads"`
	Provider     string  `yaml:"provider"`
}

// ConversationConfig controls how replies are spoken.
type ConversationConfig struct {
	Voice          string  `yaml:"voice"`
	Greeting       string  `yaml:"greeting"`
	WordsPerMinute float64 `yaml:"wordsPerMinute"`
	Speaker        string  `yaml:"speaker"` // say or kokoro
	SayCommand     string  `yaml:"sayCommand"`
	KokoroModelDir string  `yaml:"kokoroModelDir"`
	Speed          float32 `yaml:"speed"`
	BufferMs       uint32  `yaml:"bufferMs"` // Playback buffer; 0 = 100ms for Bluetooth
}

// PulseConfig holds the pulse waveform timings in milliseconds.
type PulseConfig struct {
	PhaseDurationsMs []int `yaml:"phaseDurationsMs"`
	PhaseIntervalsMs []int `yaml:"phaseIntervalsMs"`
	FadeAfterMs      int   `yaml:"fadeAfterMs"`
}

// AudioConfig selects the capture device settings.
type AudioConfig struct {
	Backend    string `yaml:"backend"`
	SampleRate int    `yaml:"sampleRate"`
	FrameSize  int    `yaml:"frameSize"`
	RecordDir  string `yaml:"recordDir"`
	QueueSize  int    `yaml:"queueSize"`
}

// InputConfig selects the push-to-talk source.
type InputConfig struct {
	Source string `yaml:"source"`
	Key    string `yaml:"key"`
}

// VisualizerConfig selects where pulse frames go.
type VisualizerConfig struct {
	Kind   string `yaml:"kind"`
	Addr   string `yaml:"addr"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// LogConfig controls diagnostics.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	modelDir := filepath.Join(homeDir, ".voice-assistant", "models")

	return &Config{
		Ollama: OllamaConfig{
			URL:            "http://localhost:11434",
			SystemPrompt:   "You are a helpful voice assistant. Keep responses brief, at most 2-3 short sentences. Your responses are read aloud, so never use markdown, lists or special characters.",
			TimeoutSeconds: 120,
		},
		Whisper: WhisperConfig{
			ModelPath:    filepath.Join(modelDir, "whisper"),
			Variant:      "small",
			Lang:         "en",
			VADThreshold: 0.5,
		},
		Conversation: ConversationConfig{
			Voice:          "Samantha",
			WordsPerMinute: tts.DefaultWordsPerMinute,
			Speaker:        SpeakerSay,
			KokoroModelDir: filepath.Join(modelDir, "tts", "kokoro-multi-lang-v1_0"),
			Speed:          1.0,
		},
		Pulse: PulseConfig{
			PhaseDurationsMs: millis(pulse.DefaultPhaseDurations),
			PhaseIntervalsMs: millis(pulse.DefaultPhaseIntervals),
			FadeAfterMs:      int(pulse.DefaultFadeAfter / time.Millisecond),
		},
		Audio: AudioConfig{
			Backend:    audio.BackendPortAudio,
			SampleRate: audio.DefaultSampleRate,
			FrameSize:  audio.DefaultFrameSize,
			QueueSize:  4,
		},
		Input: InputConfig{
			Source: input.SourceHook,
			Key:    input.DefaultKey,
		},
		Visualizer: VisualizerConfig{
			Kind:   visual.KindTerminal,
			Addr:   "127.0.0.1:8765",
			Width:  800,
			Height: 600,
		},
		Log: LogConfig{Level: "info"},
	}
}

// ParseFlags parses command-line flags and loads the configuration file they
// point to. When -list-voices or -voice-info is given the file is not read.
func ParseFlags(args []string) (*Config, error) {
	fs := flag.NewFlagSet("assistant", flag.ContinueOnError)

	path := fs.String("config", DefaultPath, "Path to the YAML configuration file")
	verbose := fs.Bool("verbose", false, "Enable verbose logging")
	ollamaURL := fs.String("ollama-url", "", "Ollama API URL (overrides config and OLLAMA_HOST)")
	ollamaModel := fs.String("ollama-model", "", "Ollama model name (overrides config and OLLAMA_MODEL)")
	listVoices := fs.Bool("list-voices", false, "List all available Kokoro voices and exit")
	voiceInfo := fs.String("voice-info", "", "Show detailed information about a specific Kokoro voice and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *listVoices || *voiceInfo != "" {
		cfg := DefaultConfig()
		cfg.ListVoices = *listVoices
		cfg.VoiceInfo = *voiceInfo
		return cfg, nil
	}

	return Load(*path, func(cfg *Config) {
		cfg.Verbose = *verbose
		if *ollamaURL != "" {
			cfg.Ollama.URL = *ollamaURL
		}
		if *ollamaModel != "" {
			cfg.Ollama.Model = *ollamaModel
		}
	})
}

// Load reads the YAML file at path over the defaults, then applies the
// environment and overrides in order before validating. Model files must
// exist.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrConfig, path, err)
	}
	cfg.Path = path

	if err := loadEnv(cfg); err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := cfg.CheckModelFiles(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnv reads an optional .env file and applies OLLAMA_HOST and
// OLLAMA_MODEL.
func loadEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: .env: %w", ErrConfig, err)
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		cfg.Ollama.URL = host
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		cfg.Ollama.Model = model
	}
	return nil
}

// normalize fills in platform-dependent defaults.
func (c *Config) normalize() {
	for _, p := range []*string{
		&c.Whisper.ModelPath,
		&c.Whisper.VADModelPath,
		&c.Conversation.KokoroModelDir,
		&c.Audio.RecordDir,
		&c.Log.File,
	} {
		*p = expandHome(*p)
	}
	if c.Whisper.Provider == "" {
		c.Whisper.Provider = sherpa.DefaultProvider()
	}
	if c.Whisper.Threads <= 0 {
		// cores/3 leaves headroom for capture and synthesis on edge devices
		c.Whisper.Threads = max(1, runtime.NumCPU()/3)
	}
}

func (c *Config) validate() error {
	var problems []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Errorf(format, args...))
		}
	}

	check(c.Ollama.Model != "", "ollama.model is required")
	check(c.Ollama.URL != "", "ollama.url is required")
	check(c.Whisper.ModelPath != "", "whisperRecognition.modelPath is required")
	check(c.Whisper.Variant != "", "whisperRecognition.variant is required")
	check(c.Conversation.WordsPerMinute > 0, "conversation.wordsPerMinute must be positive, got %v", c.Conversation.WordsPerMinute)
	check(len(c.Pulse.PhaseDurationsMs) > 0, "pulse.phaseDurationsMs must not be empty")
	check(len(c.Pulse.PhaseIntervalsMs) > 0, "pulse.phaseIntervalsMs must not be empty")
	for i, ms := range c.Pulse.PhaseDurationsMs {
		check(ms > 0, "pulse.phaseDurationsMs[%d] must be positive, got %d", i, ms)
	}
	for i, ms := range c.Pulse.PhaseIntervalsMs {
		check(ms > 0, "pulse.phaseIntervalsMs[%d] must be positive, got %d", i, ms)
	}
	check(c.Pulse.FadeAfterMs >= 0, "pulse.fadeAfterMs must not be negative")
	check(c.Audio.SampleRate > 0, "audio.sampleRate must be positive")
	check(c.Audio.FrameSize > 0, "audio.frameSize must be positive")
	check(c.Audio.QueueSize > 0, "audio.queueSize must be positive")
	check(slices.Contains([]string{audio.BackendPortAudio, audio.BackendMalgo}, c.Audio.Backend), "unknown audio.backend: %s", c.Audio.Backend)
	check(slices.Contains([]string{input.SourceHook, input.SourceTerminal}, c.Input.Source), "unknown input.source: %s", c.Input.Source)
	check(slices.Contains([]string{visual.KindNone, visual.KindTerminal, visual.KindWebSocket}, c.Visualizer.Kind), "unknown visualizer.kind: %s", c.Visualizer.Kind)
	check(slices.Contains([]string{SpeakerSay, SpeakerKokoro}, c.Conversation.Speaker), "unknown conversation.speaker: %s", c.Conversation.Speaker)
	if c.Conversation.Speaker == SpeakerKokoro {
		_, ok := tts.LookupVoice(c.Conversation.Voice)
		check(ok, "unknown Kokoro voice: %s (run with -list-voices)", c.Conversation.Voice)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(problems...))
	}
	return nil
}

// CheckModelFiles verifies that every model file the configuration needs is
// present.
func (c *Config) CheckModelFiles() error {
	required := []string{c.WhisperEncoder(), c.WhisperDecoder(), c.WhisperTokens()}
	if c.Whisper.VADModelPath != "" {
		required = append(required, c.Whisper.VADModelPath)
	}
	if c.Conversation.Speaker == SpeakerKokoro {
		required = append(required, tts.KokoroFiles(c.Conversation.KokoroModelDir)...)
	}

	for _, path := range required {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: required file not found: %s", ErrConfig, path)
		}
	}
	return nil
}

// WhisperEncoder returns the encoder model path.
func (c *Config) WhisperEncoder() string {
	return c.whisperFile("encoder.int8.onnx")
}

// WhisperDecoder returns the decoder model path.
func (c *Config) WhisperDecoder() string {
	return c.whisperFile("decoder.int8.onnx")
}

// WhisperTokens returns the tokens file path.
func (c *Config) WhisperTokens() string {
	return c.whisperFile("tokens.txt")
}

func (c *Config) whisperFile(suffix string) string {
	return filepath.Join(c.Whisper.ModelPath, fmt.Sprintf("whisper-%s-%s", c.Whisper.Variant, suffix))
}

// PulseTimings converts the pulse settings for the animator.
func (c *Config) PulseTimings() pulse.Config {
	return pulse.Config{
		PhaseDurations: durations(c.Pulse.PhaseDurationsMs),
		PhaseIntervals: durations(c.Pulse.PhaseIntervalsMs),
		FadeAfter:      time.Duration(c.Pulse.FadeAfterMs) * time.Millisecond,
	}
}

// OllamaTimeout returns the whole-request timeout for the backend.
func (c *Config) OllamaTimeout() time.Duration {
	return time.Duration(c.Ollama.TimeoutSeconds) * time.Second
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}

func durations(ms []int) []time.Duration {
	out := make([]time.Duration, len(ms))
	for i, v := range ms {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out
}

func millis(ds []time.Duration) []int {
	out := make([]int, len(ds))
	for i, d := range ds {
		out[i] = int(d / time.Millisecond)
	}
	return out
}
