package tts

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultSayCommand is the macOS speech command.
const DefaultSayCommand = "say"

// SaySpeaker speaks through the platform speech command.
type SaySpeaker struct {
	Command string
}

// NewSaySpeaker returns a speaker running command, or "say" when empty.
func NewSaySpeaker(command string) *SaySpeaker {
	if command == "" {
		command = DefaultSayCommand
	}
	return &SaySpeaker{Command: command}
}

// Available reports whether the speech command is on PATH.
func (s *SaySpeaker) Available() error {
	if _, err := exec.LookPath(s.Command); err != nil {
		return fmt.Errorf("speech command %q not found: %w", s.Command, err)
	}
	return nil
}

// Speak runs the command with the voice and text, waiting for it to exit.
func (s *SaySpeaker) Speak(ctx context.Context, text, voice string) error {
	args := s.args(text, voice)
	out, err := exec.CommandContext(ctx, s.Command, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", s.Command, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// args ends option parsing before text, so replies starting with "-" are
// spoken rather than read as flags.
func (s *SaySpeaker) args(text, voice string) []string {
	if voice == "" {
		return []string{"--", text}
	}
	return []string{"-v", voice, "--", text}
}
