// Package pulse converts "speech started at T and lasts D" into a per-frame
// intensity value for the visualizer.
//
// The animator is stateless: all mutable data lives in State, which the caller
// owns and threads through Advance. Identical inputs always produce identical
// outputs, so tests inject time directly instead of mocking a clock.
package pulse

import (
	"fmt"
	"math"
	"time"
)

// Default waveform parameters. The five phase lengths alternate fast and slow
// pulses; phases advance every 800ms.
var (
	DefaultPhaseDurations = []time.Duration{
		400 * time.Millisecond,
		600 * time.Millisecond,
		400 * time.Millisecond,
		1000 * time.Millisecond,
		400 * time.Millisecond,
	}
	DefaultPhaseIntervals = []time.Duration{
		800 * time.Millisecond,
		800 * time.Millisecond,
		800 * time.Millisecond,
		800 * time.Millisecond,
	}
)

// DefaultFadeAfter is the offset from the current phase start after which the
// fade-out envelope kicks in.
const DefaultFadeAfter = 1500 * time.Millisecond

// Config holds waveform parameters. Empty slices and a zero FadeAfter fall back
// to the defaults.
type Config struct {
	PhaseDurations []time.Duration
	PhaseIntervals []time.Duration
	FadeAfter      time.Duration
}

// State is the pulse state owned by the main loop.
type State struct {
	Active      bool
	StartTime   time.Time
	EndTime     time.Time
	CycleOrigin time.Time // start of phase 0
}

// Animator computes pulse intensities from a State.
type Animator struct {
	durations []time.Duration
	intervals []time.Duration
	period    time.Duration // sum of intervals
	fadeAfter time.Duration
}

// New creates an animator. All durations must be positive.
func New(cfg Config) (*Animator, error) {
	durations := cfg.PhaseDurations
	if len(durations) == 0 {
		durations = DefaultPhaseDurations
	}
	intervals := cfg.PhaseIntervals
	if len(intervals) == 0 {
		intervals = DefaultPhaseIntervals
	}
	fadeAfter := cfg.FadeAfter
	if fadeAfter == 0 {
		fadeAfter = DefaultFadeAfter
	}
	if fadeAfter < 0 {
		return nil, fmt.Errorf("fade offset must be positive, got %v", fadeAfter)
	}

	a := &Animator{
		durations: append([]time.Duration(nil), durations...),
		intervals: append([]time.Duration(nil), intervals...),
		fadeAfter: fadeAfter,
	}
	for i, d := range a.durations {
		if d <= 0 {
			return nil, fmt.Errorf("phase duration %d must be positive, got %v", i, d)
		}
	}
	for i, iv := range a.intervals {
		if iv <= 0 {
			return nil, fmt.Errorf("phase interval %d must be positive, got %v", i, iv)
		}
		a.period += iv
	}
	return a, nil
}

// Trigger starts a new active cycle at now lasting d. Any previous cycle is
// replaced.
func (a *Animator) Trigger(now time.Time, d time.Duration) State {
	if d < 0 {
		d = 0
	}
	return State{
		Active:      true,
		StartTime:   now,
		EndTime:     now.Add(d),
		CycleOrigin: now,
	}
}

// Advance returns the intensity in [0,1] at now and the updated state.
// Once now passes EndTime the state goes inactive regardless of phase.
func (a *Animator) Advance(now time.Time, s State) (float64, State) {
	if !s.Active {
		return 0, s
	}
	if now.After(s.EndTime) {
		s.Active = false
		return 0, s
	}

	idx, elapsed := a.phase(now.Sub(s.CycleOrigin))
	interval := a.intervals[idx%len(a.intervals)]
	duration := a.durations[idx%len(a.durations)]

	v := Waveform(elapsed, duration)
	if v > 0 {
		v *= a.fade(elapsed, interval)
	}
	return clamp01(v), s
}

// PhaseAt returns the phase index and the offset into that phase for a state
// at time now.
func (a *Animator) PhaseAt(now time.Time, s State) (int, time.Duration) {
	return a.phase(now.Sub(s.CycleOrigin))
}

// phase walks the interval list to find the phase containing elapsed. A phase
// ends once its interval has been strictly exceeded.
func (a *Animator) phase(elapsed time.Duration) (int, time.Duration) {
	if elapsed < 0 {
		elapsed = 0
	}
	idx := 0
	if elapsed > a.period {
		n := (elapsed - 1) / a.period
		elapsed -= n * a.period
		idx = int(n) * len(a.intervals)
	}
	for {
		iv := a.intervals[idx%len(a.intervals)]
		if elapsed <= iv {
			return idx, elapsed
		}
		elapsed -= iv
		idx++
	}
}

// fade returns the envelope factor: 1 up to fadeAfter, then a linear ramp to
// 0 at the end of the phase interval.
func (a *Animator) fade(elapsed, interval time.Duration) float64 {
	if elapsed <= a.fadeAfter || interval <= a.fadeAfter {
		return 1
	}
	f := 1 - float64(elapsed-a.fadeAfter)/float64(interval-a.fadeAfter)
	return clamp01(f)
}

// Waveform is the unfaded pulse shape: 0.5*(1+sin(2π·elapsed/duration)).
func Waveform(elapsed, duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}
	return 0.5 * (1 + math.Sin(2*math.Pi*float64(elapsed)/float64(duration)))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
