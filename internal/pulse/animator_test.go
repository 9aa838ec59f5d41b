package pulse

import (
	"testing"
	"time"
)

var epoch = time.Unix(1_700_000_000, 0)

func at(ms int) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

func newAnimator(t *testing.T, cfg Config) *Animator {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func TestAdvance_HardCutoffAfterEnd(t *testing.T) {
	a := newAnimator(t, Config{})
	s := a.Trigger(at(0), 2000*time.Millisecond)

	v, next := a.Advance(at(2001), s)
	if v != 0 {
		t.Errorf("intensity after end = %v, want 0", v)
	}
	if next.Active {
		t.Error("expected state to go inactive after end time")
	}

	v, next = a.Advance(at(100), s)
	if v < 0 || v > 1 {
		t.Errorf("intensity %v out of [0,1]", v)
	}
	if !next.Active {
		t.Error("expected state to stay active before end time")
	}
}

func TestAdvance_ActiveAtExactEnd(t *testing.T) {
	a := newAnimator(t, Config{})
	s := a.Trigger(at(0), 2000*time.Millisecond)

	if _, next := a.Advance(at(2000), s); !next.Active {
		t.Error("state should only go inactive once now exceeds end time")
	}
}

func TestAdvance_InactiveIsZero(t *testing.T) {
	a := newAnimator(t, Config{})

	v, next := a.Advance(at(500), State{})
	if v != 0 || next.Active {
		t.Errorf("Advance on inactive state = (%v, %v), want (0, false)", v, next.Active)
	}
}

func TestAdvance_Deterministic(t *testing.T) {
	a := newAnimator(t, Config{})
	s := a.Trigger(at(0), 10*time.Second)

	for _, ms := range []int{0, 37, 450, 801, 2500, 7999} {
		v1, s1 := a.Advance(at(ms), s)
		v2, s2 := a.Advance(at(ms), s)
		if v1 != v2 || s1 != s2 {
			t.Errorf("at %dms: got (%v,%v) then (%v,%v)", ms, v1, s1, v2, s2)
		}
	}
}

func TestAdvance_StaysInRange(t *testing.T) {
	a := newAnimator(t, Config{})
	s := a.Trigger(at(0), 20*time.Second)

	for ms := 0; ms <= 20000; ms += 7 {
		v, _ := a.Advance(at(ms), s)
		if v < 0 || v > 1 {
			t.Fatalf("intensity %v out of range at %dms", v, ms)
		}
	}
}

func TestAdvance_FadeBelowWaveform(t *testing.T) {
	a := newAnimator(t, Config{
		PhaseDurations: []time.Duration{700 * time.Millisecond},
		PhaseIntervals: []time.Duration{2 * time.Second},
	})
	s := a.Trigger(at(0), 5*time.Second)

	idx, offset := a.PhaseAt(at(1600), s)
	if idx != 0 || offset != 1600*time.Millisecond {
		t.Fatalf("PhaseAt = (%d, %v), want (0, 1.6s)", idx, offset)
	}

	raw := Waveform(offset, 700*time.Millisecond)
	v, _ := a.Advance(at(1600), s)
	if raw <= 0 {
		t.Fatalf("test point must have a positive waveform, got %v", raw)
	}
	if v >= raw {
		t.Errorf("faded intensity %v not below waveform %v", v, raw)
	}

	// Before the fade offset the envelope is transparent.
	v, _ = a.Advance(at(1400), s)
	if want := Waveform(1400*time.Millisecond, 700*time.Millisecond); v != want {
		t.Errorf("intensity before fade = %v, want %v", v, want)
	}
}

func TestPhaseAt_Walk(t *testing.T) {
	a := newAnimator(t, Config{})
	s := a.Trigger(at(0), time.Minute)

	tests := []struct {
		ms         int
		wantIdx    int
		wantOffset time.Duration
	}{
		{0, 0, 0},
		{800, 0, 800 * time.Millisecond},
		{900, 1, 100 * time.Millisecond},
		{3200, 3, 800 * time.Millisecond},
		{3300, 4, 100 * time.Millisecond},
		{4100, 5, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		idx, off := a.PhaseAt(at(tt.ms), s)
		if idx != tt.wantIdx || off != tt.wantOffset {
			t.Errorf("PhaseAt(%dms) = (%d, %v), want (%d, %v)", tt.ms, idx, off, tt.wantIdx, tt.wantOffset)
		}
	}
}

func TestTrigger_ResetsCycle(t *testing.T) {
	a := newAnimator(t, Config{})
	s := a.Trigger(at(0), time.Second)
	s = a.Trigger(at(5000), 2*time.Second)

	if !s.Active {
		t.Fatal("trigger should activate state")
	}
	if !s.StartTime.Equal(at(5000)) || !s.CycleOrigin.Equal(at(5000)) {
		t.Errorf("trigger did not reset start/origin: %+v", s)
	}
	if !s.EndTime.Equal(at(7000)) {
		t.Errorf("EndTime = %v, want %v", s.EndTime, at(7000))
	}
}

func TestNew_RejectsNonPositive(t *testing.T) {
	if _, err := New(Config{PhaseDurations: []time.Duration{0}}); err == nil {
		t.Error("expected error for zero phase duration")
	}
	if _, err := New(Config{PhaseIntervals: []time.Duration{-time.Second}}); err == nil {
		t.Error("expected error for negative phase interval")
	}
}
