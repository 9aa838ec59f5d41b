// Package inference runs the transcribe-then-generate stage of the pipeline.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voicepulse/pulse-agent/internal/audio"
	"github.com/voicepulse/pulse-agent/internal/queue"
)

// Transcriber converts captured audio to text.
type Transcriber interface {
	Transcribe(samples []float32, language string) (string, error)
}

// Generator produces a reply for a prompt, threading an opaque conversation
// context from one call to the next.
type Generator interface {
	Generate(ctx context.Context, prompt string, priorContext []int) (string, []int, error)
}

// Config holds worker settings.
type Config struct {
	Language    string
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Worker consumes utterances in order and emits one reply per successful
// cycle. The conversation context is confined to the worker goroutine.
type Worker struct {
	stt      Transcriber
	llm      Generator
	language string
	timeout  time.Duration
	log      *slog.Logger

	context []int
}

// NewWorker creates a worker.
func NewWorker(stt Transcriber, llm Generator, cfg Config) *Worker {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = queue.DefaultSendTimeout
	}
	return &Worker{
		stt:      stt,
		llm:      llm,
		language: cfg.Language,
		timeout:  timeout,
		log:      log.With("component", "inference"),
	}
}

// Run processes utterances from in until ctx is cancelled or in is closed.
// A failed cycle is logged and dropped; it never stops the loop.
func (w *Worker) Run(ctx context.Context, in <-chan audio.Utterance, out chan<- string) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-in:
			if !ok {
				return
			}

			reply, err := w.Process(ctx, u)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.log.Error("❌ Cycle dropped", "cycle", u.ID, "error", err)
				continue
			}

			w.log.Info("🤖 Assistant", "cycle", u.ID, "reply", reply)
			if !queue.Send(ctx, out, reply, w.timeout, w.log, "replies") {
				return
			}
		}
	}
}

// Process runs one cycle: transcribe, then generate with the current
// conversation context. The context is replaced only when both steps succeed.
func (w *Worker) Process(ctx context.Context, u audio.Utterance) (string, error) {
	started := time.Now()

	text, err := w.stt.Transcribe(u.Samples, w.language)
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	w.log.Debug("transcribed", "cycle", u.ID, "text", text, "elapsed", time.Since(started))

	reply, next, err := w.llm.Generate(ctx, text, w.context)
	if err != nil {
		return "", fmt.Errorf("generation: %w", err)
	}

	w.context = next
	w.log.Debug("cycle complete", "cycle", u.ID, "elapsed", time.Since(started))
	return reply, nil
}

// Context returns a copy of the current conversation context. It must not be
// called while Run is active.
func (w *Worker) Context() []int {
	return append([]int(nil), w.context...)
}
