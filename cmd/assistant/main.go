// Pulse Agent - a push-to-talk voice loop
//
// Hold the trigger key to record, release to send. Each utterance is
// transcribed with Whisper (sherpa-onnx), answered by Ollama and spoken back
// while a pulse visualizer follows the estimated speech duration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicepulse/pulse-agent/internal/assistant"
	"github.com/voicepulse/pulse-agent/internal/audio"
	"github.com/voicepulse/pulse-agent/internal/config"
	"github.com/voicepulse/pulse-agent/internal/control"
	"github.com/voicepulse/pulse-agent/internal/inference"
	"github.com/voicepulse/pulse-agent/internal/input"
	"github.com/voicepulse/pulse-agent/internal/llm"
	"github.com/voicepulse/pulse-agent/internal/logging"
	"github.com/voicepulse/pulse-agent/internal/pulse"
	"github.com/voicepulse/pulse-agent/internal/stt"
	"github.com/voicepulse/pulse-agent/internal/tts"
	"github.com/voicepulse/pulse-agent/internal/visual"
)

func main() {
	cfg, err := config.ParseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if cfg.ListVoices {
		tts.PrintVoices(os.Stdout)
		return
	}
	if cfg.VoiceInfo != "" {
		if err := tts.PrintVoiceInfo(os.Stdout, cfg.VoiceInfo); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	level := cfg.Log.Level
	if cfg.Verbose {
		level = "debug"
	}
	log, closeLog, err := logging.New(level, cfg.Log.File, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("❌ Startup failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	log.Info("🎤 Pulse Agent starting...", "config", cfg.Path)
	log.Info("⚡ STT acceleration", "provider", cfg.Whisper.Provider, "threads", cfg.Whisper.Threads)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llmClient, err := llm.NewClient(&llm.Config{
		Host:         cfg.Ollama.URL,
		Model:        cfg.Ollama.Model,
		SystemPrompt: cfg.Ollama.SystemPrompt,
		Temperature:  cfg.Ollama.Temperature,
		Timeout:      cfg.OllamaTimeout(),
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}

	log.Info("🔗 Checking Ollama connection...", "url", cfg.Ollama.URL)
	healthCtx, cancelHealth := context.WithTimeout(ctx, 10*time.Second)
	err = llmClient.HealthCheck(healthCtx)
	cancelHealth()
	if err != nil {
		return fmt.Errorf("ollama connection: %w", err)
	}
	log.Info("✅ Ollama connected", "model", cfg.Ollama.Model)

	log.Info("🧠 Loading speech recognition models...")
	recognizer, err := stt.NewRecognizer(&stt.Config{
		WhisperEncoder: cfg.WhisperEncoder(),
		WhisperDecoder: cfg.WhisperDecoder(),
		WhisperTokens:  cfg.WhisperTokens(),
		VADModel:       cfg.Whisper.VADModelPath,
		VADThreshold:   cfg.Whisper.VADThreshold,
		SampleRate:     cfg.Audio.SampleRate,
		Language:       cfg.Whisper.Lang,
		Provider:       cfg.Whisper.Provider,
		Threads:        cfg.Whisper.Threads,
		Verbose:        cfg.Verbose,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("create STT recognizer: %w", err)
	}
	defer recognizer.Close()
	log.Info("✅ Speech recognition ready")

	speaker, closeSpeaker, err := newSpeaker(cfg, log)
	if err != nil {
		return err
	}
	defer closeSpeaker()

	dispatcher := tts.NewDispatcher(speaker, tts.DispatcherConfig{
		Voice:          cfg.Conversation.Voice,
		WordsPerMinute: cfg.Conversation.WordsPerMinute,
		Logger:         log,
	})

	animator, err := pulse.New(cfg.PulseTimings())
	if err != nil {
		return fmt.Errorf("pulse: %w", err)
	}

	mic, closeMic, err := audio.NewMicrophone(cfg.Audio.Backend, cfg.Audio.SampleRate, cfg.Audio.FrameSize, log)
	if err != nil {
		return fmt.Errorf("%w: %w", audio.ErrDevice, err)
	}
	defer closeMic()

	recorder := audio.NewRecorder(mic, audio.RecorderConfig{
		SampleRate: cfg.Audio.SampleRate,
		FrameSize:  cfg.Audio.FrameSize,
		RecordDir:  cfg.Audio.RecordDir,
		Logger:     log,
	})
	worker := inference.NewWorker(recognizer, llmClient, inference.Config{
		Language: cfg.Whisper.Lang,
		Logger:   log,
	})

	source, err := input.New(cfg.Input.Source, cfg.Input.Key, log)
	if err != nil {
		return fmt.Errorf("input: %w", err)
	}
	renderer, err := visual.New(cfg.Visualizer.Kind, os.Stdout, log)
	if err != nil {
		return fmt.Errorf("visualizer: %w", err)
	}

	var (
		recording  control.Signal
		utterances = make(chan audio.Utterance, cfg.Audio.QueueSize)
		replies    = make(chan string, cfg.Audio.QueueSize)
		events     = make(chan input.Event, 16)
	)

	workers := []func(context.Context){
		func(ctx context.Context) { recorder.Run(ctx, &recording, utterances) },
		func(ctx context.Context) { worker.Run(ctx, utterances, replies) },
		func(ctx context.Context) {
			defer close(events)
			if err := source.Run(ctx, events); err != nil {
				log.Error("❌ Input source failed", "error", err)
			}
		},
	}
	if b, ok := renderer.(*visual.Broadcaster); ok {
		workers = append(workers, func(ctx context.Context) {
			if err := b.Serve(ctx, cfg.Visualizer.Addr); err != nil {
				log.Error("❌ Visualizer server failed", "error", err)
			}
		})
	}

	loop, err := assistant.New(assistant.Deps{
		Recording:  &recording,
		Events:     events,
		Replies:    replies,
		Dispatcher: dispatcher,
		Animator:   animator,
		Renderer:   renderer,
		Workers:    workers,
	}, assistant.Config{
		Width:    cfg.Visualizer.Width,
		Height:   cfg.Visualizer.Height,
		Greeting: cfg.Conversation.Greeting,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	return loop.Run(ctx)
}

// newSpeaker builds the configured speech backend and its cleanup function.
func newSpeaker(cfg *config.Config, log *slog.Logger) (tts.Speaker, func(), error) {
	switch cfg.Conversation.Speaker {
	case config.SpeakerKokoro:
		log.Info("🔊 Loading text-to-speech models...")
		player, err := audio.NewPlayer(tts.KokoroSampleRate, cfg.Conversation.BufferMs, log)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: create audio player: %w", audio.ErrDevice, err)
		}
		kokoro, err := tts.NewKokoroSpeaker(&tts.KokoroConfig{
			ModelDir: cfg.Conversation.KokoroModelDir,
			Voice:    cfg.Conversation.Voice,
			Speed:    cfg.Conversation.Speed,
			Provider: cfg.Whisper.Provider,
			Threads:  cfg.Whisper.Threads,
			Verbose:  cfg.Verbose,
			Logger:   log,
		}, player)
		if err != nil {
			player.Close()
			return nil, nil, fmt.Errorf("create TTS synthesizer: %w", err)
		}
		log.Info("✅ Text-to-speech ready", "voice", cfg.Conversation.Voice)
		return kokoro, func() {
			kokoro.Close()
			player.Close()
		}, nil
	default:
		say := tts.NewSaySpeaker(cfg.Conversation.SayCommand)
		if err := say.Available(); err != nil {
			return nil, nil, err
		}
		log.Info("🔊 Using system speech", "command", say.Command, "voice", cfg.Conversation.Voice)
		return say, func() {}, nil
	}
}
