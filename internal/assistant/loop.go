// Package assistant drives the push-to-talk loop: it maps input events to
// the recording signal, speaks replies as they arrive and renders the pulse.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voicepulse/pulse-agent/internal/control"
	"github.com/voicepulse/pulse-agent/internal/input"
	"github.com/voicepulse/pulse-agent/internal/pulse"
	"github.com/voicepulse/pulse-agent/internal/queue"
	"github.com/voicepulse/pulse-agent/internal/tts"
	"github.com/voicepulse/pulse-agent/internal/visual"
)

// Defaults for Config.
const (
	DefaultFrameRate       = 60
	DefaultShutdownTimeout = 5 * time.Second
)

// Dispatcher starts speech without waiting for it.
type Dispatcher interface {
	Speak(text string) tts.SpeechEvent
	Pending() int64
}

// Deps are the collaborators the loop coordinates.
type Deps struct {
	Recording  *control.Signal
	Events     <-chan input.Event
	Replies    <-chan string
	Dispatcher Dispatcher
	Animator   *pulse.Animator
	Renderer   visual.Renderer

	// Workers run for the lifetime of the loop and must return once their
	// context is cancelled.
	Workers []func(ctx context.Context)
}

// Config holds loop settings.
type Config struct {
	FrameRate       int
	Width, Height   int
	Greeting        string
	ShutdownTimeout time.Duration
	Clock           func() time.Time // Defaults to time.Now
	Logger          *slog.Logger
}

// Loop is the single coordinating driver. Its methods are not safe for
// concurrent use; everything runs on the goroutine calling Run.
type Loop struct {
	deps    Deps
	cfg     Config
	now     func() time.Time
	log     *slog.Logger
	state   pulse.State
	started time.Time
}

// New validates deps and fills config defaults.
func New(deps Deps, cfg Config) (*Loop, error) {
	switch {
	case deps.Recording == nil:
		return nil, fmt.Errorf("recording signal is required")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("speech dispatcher is required")
	case deps.Animator == nil:
		return nil, fmt.Errorf("pulse animator is required")
	}
	if deps.Renderer == nil {
		deps.Renderer = visual.Nop{}
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultFrameRate
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Loop{
		deps:    deps,
		cfg:     cfg,
		now:     cfg.Clock,
		log:     cfg.Logger.With("component", "loop"),
		started: cfg.Clock(),
	}, nil
}

// Run starts the workers, greets, and then services input, replies and
// frames until a quit event or ctx is cancelled. It returns once the workers
// have stopped or the shutdown timeout expired.
func (l *Loop) Run(ctx context.Context) error {
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var wg sync.WaitGroup
	for _, work := range l.deps.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			work(workerCtx)
		}()
	}

	l.started = l.now()
	if l.cfg.Greeting != "" {
		l.Greet(l.cfg.Greeting)
	}

	ticker := time.NewTicker(time.Second / time.Duration(l.cfg.FrameRate))
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev, ok := <-l.deps.Events:
			if !ok {
				l.log.Warn("Input source stopped")
				break loop
			}
			if l.HandleEvent(ev) {
				break loop
			}
		case <-ticker.C:
			l.DrainReplies()
			l.Frame(l.now())
		}
	}

	l.log.Info("🛑 Shutting down...")
	l.deps.Recording.Clear()
	cancelWorkers()
	l.wait(&wg)

	if n := l.deps.Dispatcher.Pending(); n > 0 {
		l.log.Info("Playback still in progress, it may be cut off", "pending", n)
	}
	return nil
}

func (l *Loop) wait(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.log.Info("✅ Shutdown complete")
	case <-time.After(l.cfg.ShutdownTimeout):
		l.log.Warn("⚠️ Shutdown timeout, forcing exit", "timeout", l.cfg.ShutdownTimeout)
	}
}

// HandleEvent applies one input event and reports whether it requests quit.
func (l *Loop) HandleEvent(ev input.Event) bool {
	switch ev.Kind {
	case input.Press:
		if !l.deps.Recording.IsSet() {
			l.log.Info("🎙️ Listening...")
		}
		l.deps.Recording.Set()
	case input.Release:
		if l.deps.Recording.IsSet() {
			l.log.Info("⏹️ Recording stopped")
		}
		l.deps.Recording.Clear()
	case input.Quit:
		return true
	}
	return false
}

// DrainReplies speaks every queued reply in arrival order and returns how
// many were handled.
func (l *Loop) DrainReplies() int {
	if l.deps.Replies == nil {
		return 0
	}
	replies := queue.Drain(l.deps.Replies)
	for _, reply := range replies {
		l.speak(reply)
	}
	return len(replies)
}

// Greet speaks text and starts the pulse, without touching capture or
// inference.
func (l *Loop) Greet(text string) tts.SpeechEvent {
	l.log.Info("👋 Greeting", "text", text)
	return l.speak(text)
}

func (l *Loop) speak(text string) tts.SpeechEvent {
	ev := l.deps.Dispatcher.Speak(text)
	if ev.Duration <= 0 {
		return ev
	}
	// Keep pulsing through speech still queued ahead of this text.
	d := ev.Duration
	if end := ev.Start.Add(d); ev.Until.After(end) {
		d = ev.Until.Sub(ev.Start)
	}
	l.state = l.deps.Animator.Trigger(ev.Start, d)
	return ev
}

// Frame advances the pulse to now and renders it.
func (l *Loop) Frame(now time.Time) visual.Frame {
	intensity, next := l.deps.Animator.Advance(now, l.state)
	if l.state.Active && !next.Active {
		l.log.Debug("Pulse finished")
	}
	l.state = next

	f := visual.Frame{
		Intensity: intensity,
		Elapsed:   now.Sub(l.started),
		Width:     l.cfg.Width,
		Height:    l.cfg.Height,
	}
	l.deps.Renderer.Render(f)
	return f
}

// State returns the current pulse state.
func (l *Loop) State() pulse.State {
	return l.state
}
