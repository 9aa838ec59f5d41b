package audio

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/voicepulse/pulse-agent/internal/control"
)

// fakeMic produces frames of a constant value, one every frameDelay.
type fakeMic struct {
	mu         sync.Mutex
	opens      int
	reads      int
	open       bool
	failOpens  int    // Number of leading Open calls that fail
	onOpen     func() // Called after a successful Open
	frameDelay time.Duration
	value      int16
}

func (m *fakeMic) Open() error {
	m.mu.Lock()
	m.opens++
	if m.failOpens > 0 {
		m.failOpens--
		m.mu.Unlock()
		return errors.New("device busy")
	}
	m.open = true
	hook := m.onOpen
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (m *fakeMic) Read(frame []int16) error {
	time.Sleep(m.frameDelay)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return errors.New("not open")
	}
	for i := range frame {
		frame[i] = m.value
	}
	m.reads++
	return nil
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}

func (m *fakeMic) stats() (opens, reads int, open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens, m.reads, m.open
}

func startRecorder(t *testing.T, mic Microphone, frameSize int) (*control.Signal, chan Utterance, context.CancelFunc, chan struct{}) {
	t.Helper()
	rec := &control.Signal{}
	out := make(chan Utterance, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	r := NewRecorder(mic, RecorderConfig{
		SampleRate:   DefaultSampleRate,
		FrameSize:    frameSize,
		PollInterval: time.Millisecond,
	})
	go func() {
		defer close(done)
		r.Run(ctx, rec, out)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return rec, out, cancel, done
}

func waitUtterance(t *testing.T, out <-chan Utterance) Utterance {
	t.Helper()
	select {
	case u := <-out:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for utterance")
		return Utterance{}
	}
}

func TestRecorder_LosslessConcatenation(t *testing.T) {
	mic := &fakeMic{frameDelay: 2 * time.Millisecond, value: 16384}
	rec, out, _, _ := startRecorder(t, mic, 256)

	rec.Set()
	time.Sleep(40 * time.Millisecond)
	rec.Clear()

	u := waitUtterance(t, out)
	_, reads, open := mic.stats()

	if reads == 0 {
		t.Fatal("expected at least one frame to be read")
	}
	if len(u.Samples) != reads*256 {
		t.Errorf("utterance has %d samples, want %d (%d frames)", len(u.Samples), reads*256, reads)
	}
	for i, s := range u.Samples {
		if s != 0.5 {
			t.Fatalf("sample %d = %v, want 0.5", i, s)
		}
	}
	if open {
		t.Error("microphone should be released after the session")
	}
	if u.ID == "" {
		t.Error("utterance should carry a cycle ID")
	}
	if u.SampleRate != DefaultSampleRate {
		t.Errorf("SampleRate = %d, want %d", u.SampleRate, DefaultSampleRate)
	}
}

func TestRecorder_ReleaseWithinFirstFrameEmitsEmpty(t *testing.T) {
	rec := &control.Signal{}
	mic := &fakeMic{frameDelay: time.Millisecond}
	// The key is released before the first frame could be read.
	mic.onOpen = rec.Clear

	out := make(chan Utterance, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRecorder(mic, RecorderConfig{FrameSize: 64, PollInterval: time.Millisecond})
	go r.Run(ctx, rec, out)

	rec.Set()
	u := waitUtterance(t, out)

	if len(u.Samples) != 0 {
		t.Errorf("expected empty utterance, got %d samples", len(u.Samples))
	}
	if u.Samples == nil {
		t.Error("empty utterance should still carry a non-nil sample slice")
	}
}

func TestRecorder_TapBetweenPollsEmitsEmpty(t *testing.T) {
	rec := &control.Signal{}
	mic := &fakeMic{frameDelay: time.Millisecond}
	out := make(chan Utterance, 32)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A long poll guarantees every tap lands between two checks.
	r := NewRecorder(mic, RecorderConfig{FrameSize: 64, PollInterval: 50 * time.Millisecond})
	go r.Run(ctx, rec, out)

	const taps = 20
	for range taps {
		rec.Set()
		rec.Clear()
	}

	for i := range taps {
		u := waitUtterance(t, out)
		if len(u.Samples) != 0 || u.Samples == nil {
			t.Fatalf("tap %d: got %d samples (nil=%v), want a non-nil empty utterance", i, len(u.Samples), u.Samples == nil)
		}
	}
	select {
	case u := <-out:
		t.Errorf("extra utterance after %d taps: %+v", taps, u)
	case <-time.After(120 * time.Millisecond):
	}
	if opens, _, _ := mic.stats(); opens != 0 {
		t.Errorf("device opened %d times for released taps, want 0", opens)
	}
}

func TestRecorder_TapThenHoldRecordsBoth(t *testing.T) {
	rec := &control.Signal{}
	mic := &fakeMic{frameDelay: time.Millisecond, value: 16384}
	out := make(chan Utterance, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRecorder(mic, RecorderConfig{FrameSize: 64, PollInterval: 30 * time.Millisecond})
	go r.Run(ctx, rec, out)

	rec.Set()
	rec.Clear()
	rec.Set() // still held at the next poll
	time.Sleep(80 * time.Millisecond)
	rec.Clear()

	first := waitUtterance(t, out)
	second := waitUtterance(t, out)
	if len(first.Samples) != 0 {
		t.Errorf("first utterance has %d samples, want the empty tap", len(first.Samples))
	}
	if len(second.Samples) == 0 {
		t.Error("held press produced no audio")
	}
}

func TestRecorder_OpenFailureRetriedOnNextPress(t *testing.T) {
	rec := &control.Signal{}
	mic := &fakeMic{failOpens: 1, frameDelay: time.Millisecond}

	out := make(chan Utterance, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRecorder(mic, RecorderConfig{FrameSize: 64, PollInterval: time.Millisecond})
	go r.Run(ctx, rec, out)

	rec.Set()
	deadline := time.Now().Add(time.Second)
	for {
		if opens, _, _ := mic.stats(); opens >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("recorder never tried to open the device")
		}
		time.Sleep(time.Millisecond)
	}

	// Holding the key after a failure must not spin on Open.
	time.Sleep(20 * time.Millisecond)
	if opens, _, _ := mic.stats(); opens != 1 {
		t.Fatalf("device opened %d times during one press, want 1", opens)
	}
	select {
	case u := <-out:
		t.Fatalf("unexpected utterance after failed open: %+v", u)
	default:
	}

	rec.Clear()
	time.Sleep(10 * time.Millisecond)
	mic.mu.Lock()
	mic.onOpen = rec.Clear
	mic.mu.Unlock()
	rec.Set()

	waitUtterance(t, out)
	if opens, _, _ := mic.stats(); opens != 2 {
		t.Errorf("opens = %d, want 2", opens)
	}
}

func TestRecorder_StopsOnShutdown(t *testing.T) {
	mic := &fakeMic{frameDelay: time.Millisecond}
	_, _, cancel, done := startRecorder(t, mic, 64)

	cancel()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("recorder did not stop after shutdown")
	}
	if _, _, open := mic.stats(); open {
		t.Error("device left open after shutdown")
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]int16{-32768, 0, 16384, 32767})
	want := []float32{-1, 0, 0.5, 32767.0 / 32768.0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWriteWAV(t *testing.T) {
	dir := t.TempDir()
	u := Utterance{
		ID:         "cycle-1",
		Samples:    Normalize([]int16{0, 1000, -1000, 32767}),
		SampleRate: 16000,
	}

	path, err := WriteWAV(dir, u)
	if err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open written file: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("written file is not a valid WAV")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(buf.Data) != len(u.Samples) {
		t.Errorf("decoded %d samples, want %d", len(buf.Data), len(u.Samples))
	}
	if buf.Data[1] != 1000 || buf.Data[2] != -1000 {
		t.Errorf("decoded samples %v do not round-trip", buf.Data)
	}
	if int(dec.SampleRate) != 16000 {
		t.Errorf("sample rate = %d, want 16000", dec.SampleRate)
	}
}
