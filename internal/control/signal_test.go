package control

import "testing"

func TestSignalLevel(t *testing.T) {
	var s Signal
	if s.IsSet() {
		t.Fatal("zero value should be cleared")
	}
	s.Set()
	if !s.IsSet() {
		t.Error("Set did not raise the signal")
	}
	s.Clear()
	if s.IsSet() {
		t.Error("Clear did not lower the signal")
	}
	s.Clear()
	if s.IsSet() {
		t.Error("double Clear raised the signal")
	}
}

func TestSignalCountsRisingEdges(t *testing.T) {
	var s Signal
	s.Set()
	s.Set() // held, not a new press
	s.Clear()
	s.Set()
	s.Clear()
	s.Clear()

	presses, set := s.Snapshot()
	if presses != 2 || set {
		t.Errorf("Snapshot = (%d, %v), want (2, false)", presses, set)
	}
	if s.Presses() != 2 {
		t.Errorf("Presses = %d, want 2", s.Presses())
	}
}
