// Package audio provides push-to-talk capture and speech playback.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voicepulse/pulse-agent/internal/control"
	"github.com/voicepulse/pulse-agent/internal/queue"
)

// Capture defaults. At 16kHz a 1024-sample frame is 64ms of audio.
const (
	DefaultSampleRate = 16000
	DefaultFrameSize  = 1024

	// PollInterval is how often the idle recorder checks the recording flag
	// and the shutdown context.
	PollInterval = 10 * time.Millisecond

	// maxReadFailures aborts a session after this many consecutive frame
	// read errors, so a vanished device does not spin the loop.
	maxReadFailures = 20
)

// ErrDevice reports that the capture device could not be opened or read.
var ErrDevice = errors.New("audio device error")

// Microphone is an input device that is opened for one recording session and
// read in fixed-size frames.
type Microphone interface {
	// Open acquires the device. It is called once per session.
	Open() error
	// Read blocks until len(frame) samples have been captured.
	Read(frame []int16) error
	// Close releases the device so other applications can use it.
	Close() error
}

// Utterance is the audio captured during one press-release cycle.
type Utterance struct {
	ID         string    // Cycle identifier used to correlate logs
	Samples    []float32 // Mono samples normalized to [-1, 1)
	SampleRate int       // Sample rate in Hz
	StartedAt  time.Time // Press time
	EndedAt    time.Time // Release time
}

// Duration returns the length of the captured audio.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// RecorderConfig holds capture settings.
type RecorderConfig struct {
	SampleRate   int
	FrameSize    int
	PollInterval time.Duration
	SendTimeout  time.Duration
	RecordDir    string // Optional directory for WAV dumps of each utterance
	Logger       *slog.Logger
}

// Recorder turns the recording flag into utterances. The microphone is only
// held open while the flag is raised.
type Recorder struct {
	mic Microphone
	cfg RecorderConfig
	log *slog.Logger
}

// NewRecorder creates a recorder reading from mic.
func NewRecorder(mic Microphone, cfg RecorderConfig) *Recorder {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = PollInterval
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = queue.DefaultSendTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		mic: mic,
		cfg: cfg,
		log: log.With("component", "capture"),
	}
}

// Run records one utterance per press-release cycle of rec and sends it on
// out. It returns when ctx is cancelled. Device errors are logged and the next
// press retries; Run never fails. A press released before the next poll still
// yields an empty utterance.
func (r *Recorder) Run(ctx context.Context, rec *control.Signal, out chan<- Utterance) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	var seen uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		presses, live := rec.Snapshot()
		missed := presses - seen
		if live && missed > 0 {
			missed-- // The held press is recorded below
		}
		seen = presses
		for ; missed > 0; missed-- {
			now := time.Now()
			r.log.Debug("press released before capture started")
			if !r.emit(ctx, out, r.utterance(nil, now, now)) {
				return
			}
		}
		if !live {
			continue
		}

		u, err := r.record(ctx, rec)
		if err != nil {
			r.log.Error("recording failed, waiting for next press", "error", err)
			if !r.waitRelease(ctx, rec) {
				return
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if !r.emit(ctx, out, u) {
			return
		}
	}
}

// emit optionally dumps u to disk and hands it to the consumer. It returns
// false on shutdown.
func (r *Recorder) emit(ctx context.Context, out chan<- Utterance, u Utterance) bool {
	r.log.Info("🎤 Utterance captured", "cycle", u.ID, "samples", len(u.Samples), "duration", u.Duration())
	if r.cfg.RecordDir != "" {
		if path, err := WriteWAV(r.cfg.RecordDir, u); err != nil {
			r.log.Warn("failed to save utterance", "cycle", u.ID, "error", err)
		} else {
			r.log.Debug("utterance saved", "cycle", u.ID, "path", path)
		}
	}
	return queue.Send(ctx, out, u, r.cfg.SendTimeout, r.log, "utterances")
}

func (r *Recorder) utterance(pcm []int16, started, ended time.Time) Utterance {
	return Utterance{
		ID:         uuid.NewString(),
		Samples:    Normalize(pcm),
		SampleRate: r.cfg.SampleRate,
		StartedAt:  started,
		EndedAt:    ended,
	}
}

// record captures frames while rec stays raised. The flag is checked before
// every read, so a release within the first frame yields an empty utterance.
func (r *Recorder) record(ctx context.Context, rec *control.Signal) (Utterance, error) {
	started := time.Now()
	if err := r.mic.Open(); err != nil {
		return Utterance{}, fmt.Errorf("%w: failed to open microphone: %w", ErrDevice, err)
	}

	frame := make([]int16, r.cfg.FrameSize)
	var pcm []int16
	failures := 0

	for rec.IsSet() && ctx.Err() == nil {
		if err := r.mic.Read(frame); err != nil {
			failures++
			r.log.Debug("frame read failed", "error", err, "consecutive", failures)
			if failures >= maxReadFailures {
				_ = r.mic.Close()
				return Utterance{}, fmt.Errorf("%w: too many read failures: %w", ErrDevice, err)
			}
			continue
		}
		failures = 0
		pcm = append(pcm, frame...)
	}

	if err := r.mic.Close(); err != nil {
		r.log.Warn("failed to close capture device", "error", err)
	}

	return r.utterance(pcm, started, time.Now()), nil
}

// waitRelease blocks until rec is cleared so a failed open is retried on the
// next press rather than in a tight loop. Returns false on shutdown.
func (r *Recorder) waitRelease(ctx context.Context, rec *control.Signal) bool {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for rec.IsSet() {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

// Normalize converts 16-bit PCM to float32 samples in [-1, 1).
// The result always has exactly len(pcm) samples.
func Normalize(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}
