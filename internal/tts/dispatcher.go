// Package tts turns reply text into speech without blocking the caller.
package tts

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWordsPerMinute is the assumed speaking rate for duration estimates.
const DefaultWordsPerMinute = 154

// Speaker produces audible speech for text. Implementations block until
// playback is done.
type Speaker interface {
	Speak(ctx context.Context, text, voice string) error
}

// SpeechEvent describes one dispatched utterance.
type SpeechEvent struct {
	Text     string
	Duration time.Duration // Estimated, not measured
	Start    time.Time

	// Until is the estimated end of playback, including speech queued ahead
	// of this text.
	Until time.Time
}

// EstimateDuration returns how long text takes to speak at wpm words per
// minute. A non-positive wpm uses DefaultWordsPerMinute.
func EstimateDuration(text string, wpm float64) time.Duration {
	if wpm <= 0 {
		wpm = DefaultWordsPerMinute
	}
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	seconds := float64(words) / (wpm / 60)
	return time.Duration(seconds * float64(time.Second))
}

// DispatcherConfig holds Dispatcher settings.
type DispatcherConfig struct {
	Voice          string
	WordsPerMinute float64
	Clock          func() time.Time // Defaults to time.Now
	Logger         *slog.Logger
}

// Dispatcher launches playback in the background and reports the estimated
// duration synchronously. Texts are spoken one at a time in dispatch order.
type Dispatcher struct {
	speaker Speaker
	voice   string
	wpm     float64
	now     func() time.Time
	log     *slog.Logger
	pending atomic.Int64

	mu        sync.Mutex
	last      chan struct{} // Closed when the most recent playback ends
	busyUntil time.Time     // Estimated end of queued playback
}

// NewDispatcher creates a dispatcher that plays through speaker.
func NewDispatcher(speaker Speaker, cfg DispatcherConfig) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		speaker: speaker,
		voice:   cfg.Voice,
		wpm:     cfg.WordsPerMinute,
		now:     cfg.Clock,
		log:     cfg.Logger.With("component", "speech"),
	}
}

// Speak estimates the duration of text and starts playing it on a detached
// goroutine once earlier texts have finished. Playback is not tied to any
// caller context and may be cut off when the process exits. Blank text
// returns a zero event without playback.
func (d *Dispatcher) Speak(text string) SpeechEvent {
	ev := SpeechEvent{
		Text:     text,
		Duration: EstimateDuration(text, d.wpm),
		Start:    d.now(),
	}
	if ev.Duration == 0 {
		return ev
	}

	d.mu.Lock()
	prev := d.last
	done := make(chan struct{})
	d.last = done
	begin := ev.Start
	if d.busyUntil.After(begin) {
		begin = d.busyUntil
	}
	ev.Until = begin.Add(ev.Duration)
	d.busyUntil = ev.Until
	d.mu.Unlock()

	d.pending.Add(1)
	go func() {
		defer d.pending.Add(-1)
		defer close(done)
		if prev != nil {
			<-prev
		}

		start := time.Now()
		if err := d.speaker.Speak(context.Background(), text, d.voice); err != nil {
			d.log.Error("❌ Speech playback failed", "error", err)
			return
		}
		d.log.Debug("🔊 Speech finished",
			"estimated", ev.Duration.Round(time.Millisecond),
			"actual", time.Since(start).Round(time.Millisecond))
	}()

	d.log.Info("🗣️ Speaking", "words", len(strings.Fields(text)), "estimate", ev.Duration.Round(time.Millisecond))
	return ev
}

// Pending reports playback tasks that have not finished.
func (d *Dispatcher) Pending() int64 {
	return d.pending.Load()
}
