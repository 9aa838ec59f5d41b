// Package control provides the level-triggered flags shared between the
// main loop and the capture goroutine.
package control

import "sync/atomic"

// Signal is a binary flag with a single writer and a single reader. It also
// counts rising edges, so a reader polling the level can tell that a press
// happened even when the flag was cleared again before it looked.
// The zero value is a cleared signal ready for use.
type Signal struct {
	// Bit 0 is the level; the remaining bits count Set calls that raised it.
	v atomic.Uint64
}

// Set raises the signal. Setting an already raised signal is a no-op and
// does not count as a new press.
func (s *Signal) Set() {
	for {
		old := s.v.Load()
		if old&1 == 1 {
			return
		}
		if s.v.CompareAndSwap(old, old+3) {
			return
		}
	}
}

// Clear lowers the signal.
func (s *Signal) Clear() {
	for {
		old := s.v.Load()
		if old&1 == 0 || s.v.CompareAndSwap(old, old&^1) {
			return
		}
	}
}

// IsSet reports whether the signal is currently raised.
func (s *Signal) IsSet() bool {
	return s.v.Load()&1 == 1
}

// Presses returns how many times the signal has been raised.
func (s *Signal) Presses() uint64 {
	return s.v.Load() >> 1
}

// Snapshot returns the press count and the level read together.
func (s *Signal) Snapshot() (presses uint64, set bool) {
	v := s.v.Load()
	return v >> 1, v&1 == 1
}
