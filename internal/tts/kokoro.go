package tts

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/voicepulse/pulse-agent/internal/sherpa"
)

// KokoroSampleRate is the output rate of Kokoro models.
const KokoroSampleRate = 24000

// Player plays mono float32 audio, blocking until done.
type Player interface {
	Play(ctx context.Context, samples []float32) error
}

// KokoroConfig holds Kokoro model settings.
type KokoroConfig struct {
	ModelDir string  // Directory with model.onnx, voices.bin, tokens.txt, espeak-ng-data
	Voice    string  // Default voice; fixes the lexicon and language
	Speed    float32 // Speech speed multiplier
	Provider string  // Hardware acceleration provider (cpu, cuda, coreml)
	Threads  int
	Verbose  bool
	Logger   *slog.Logger
}

// KokoroFiles lists the model files expected in a Kokoro model directory.
func KokoroFiles(modelDir string) []string {
	return []string{
		filepath.Join(modelDir, "model.onnx"),
		filepath.Join(modelDir, "voices.bin"),
		filepath.Join(modelDir, "tokens.txt"),
	}
}

// KokoroSpeaker synthesizes speech on-device with sherpa-onnx and plays it.
type KokoroSpeaker struct {
	tts       *sherpa.OfflineTts
	player    Player
	speakerID int
	speed     float32
	log       *slog.Logger
	mu        sync.Mutex // The TTS engine is not thread-safe
}

// NewKokoroSpeaker loads the Kokoro model. Playback goes to player, which
// must accept KokoroSampleRate audio.
func NewKokoroSpeaker(cfg *KokoroConfig, player Player) (*KokoroSpeaker, error) {
	voice, ok := LookupVoice(cfg.Voice)
	if !ok {
		return nil, fmt.Errorf("unknown Kokoro voice: %s", cfg.Voice)
	}
	speed := cfg.Speed
	if speed <= 0 {
		speed = 1
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	ttsConfig := &sherpa.OfflineTtsConfig{}
	ttsConfig.Model.Kokoro.Model = filepath.Join(cfg.ModelDir, "model.onnx")
	ttsConfig.Model.Kokoro.Voices = filepath.Join(cfg.ModelDir, "voices.bin")
	ttsConfig.Model.Kokoro.Tokens = filepath.Join(cfg.ModelDir, "tokens.txt")
	ttsConfig.Model.Kokoro.DataDir = filepath.Join(cfg.ModelDir, "espeak-ng-data")
	ttsConfig.Model.Kokoro.Lexicon = Lexicon(cfg.ModelDir, voice)
	ttsConfig.Model.Kokoro.Lang = EspeakLanguage(voice)
	ttsConfig.Model.Kokoro.LengthScale = 1.0 / speed
	ttsConfig.Model.NumThreads = max(1, cfg.Threads)
	ttsConfig.Model.Provider = cfg.Provider
	ttsConfig.MaxNumSentences = 1 // Kokoro only supports 1
	if cfg.Verbose {
		ttsConfig.Model.Debug = 1
	}

	engine := sherpa.NewOfflineTts(ttsConfig)
	if engine == nil {
		return nil, fmt.Errorf("failed to create TTS synthesizer")
	}

	return &KokoroSpeaker{
		tts:       engine,
		player:    player,
		speakerID: voice.SpeakerID,
		speed:     speed,
		log:       log.With("component", "kokoro"),
	}, nil
}

// SampleRate is the rate of synthesized audio.
func (k *KokoroSpeaker) SampleRate() int {
	return KokoroSampleRate
}

// Speak synthesizes text sentence by sentence, playing each as soon as it is
// ready. voice selects another speaker of the loaded model when known.
// A failed sentence is skipped.
func (k *KokoroSpeaker) Speak(ctx context.Context, text, voice string) error {
	sid := k.speakerID
	if v, ok := LookupVoice(voice); ok {
		sid = v.SpeakerID
	}

	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	played := 0
	for i, sentence := range sentences {
		samples, err := k.synthesize(sentence, sid)
		if err != nil {
			k.log.Warn("❌ Sentence synthesis failed", "sentence", i+1, "error", err)
			continue
		}
		if err := k.player.Play(ctx, samples); err != nil {
			return fmt.Errorf("playback: %w", err)
		}
		played++
	}
	if played == 0 {
		return fmt.Errorf("TTS generation failed for all %d sentences", len(sentences))
	}
	return nil
}

func (k *KokoroSpeaker) synthesize(sentence string, sid int) ([]float32, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.tts == nil {
		return nil, fmt.Errorf("synthesizer closed")
	}
	audio := k.tts.Generate(sentence, sid, k.speed)
	if audio == nil || len(audio.Samples) == 0 {
		return nil, fmt.Errorf("TTS generation failed")
	}
	k.log.Debug("🎵 Generated speech", "samples", len(audio.Samples))
	return audio.Samples, nil
}

// Close releases the TTS engine.
func (k *KokoroSpeaker) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.tts != nil {
		sherpa.DeleteOfflineTts(k.tts)
		k.tts = nil
	}
}

// SplitSentences splits text on sentence boundaries, dropping empty pieces.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for _, c := range text {
		current.WriteRune(c)
		if c == '.' || c == '!' || c == '?' || c == '\n' {
			flush()
		}
	}
	flush()
	return sentences
}
