package input

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eiannone/keyboard"
)

// TerminalSource reads keys from the controlling terminal. Terminals report
// no key-up, so each hit of the trigger toggles between press and release.
type TerminalSource struct {
	key  keyboard.Key
	char rune
	log  *slog.Logger
}

// NewTerminalSource binds the trigger to "space", "enter", "tab" or a single
// printable character.
func NewTerminalSource(key string, log *slog.Logger) (*TerminalSource, error) {
	t := &TerminalSource{log: log.With("component", "input")}
	switch key {
	case "space":
		t.key = keyboard.KeySpace
	case "enter":
		t.key = keyboard.KeyEnter
	case "tab":
		t.key = keyboard.KeyTab
	default:
		r := []rune(key)
		if len(r) != 1 {
			return nil, fmt.Errorf("unsupported terminal trigger key: %s", key)
		}
		t.char = r[0]
	}
	return t, nil
}

// Run reads the terminal in raw mode until ctx is cancelled or Esc/Ctrl+C.
func (t *TerminalSource) Run(ctx context.Context, out chan<- Event) error {
	keys, err := keyboard.GetKeys(16)
	if err != nil {
		return fmt.Errorf("open terminal keyboard: %w", err)
	}
	defer keyboard.Close()
	t.log.Info("⌨️ Press the trigger key to start talking, again to stop, Esc to quit")

	recording := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case k, ok := <-keys:
			if !ok {
				return fmt.Errorf("terminal keyboard closed")
			}
			if k.Err != nil {
				t.log.Warn("Keyboard read failed", "error", k.Err)
				continue
			}
			kind, ok := t.translate(k, &recording)
			if !ok {
				continue
			}
			if !emit(ctx, out, Event{Kind: kind, At: time.Now()}) || kind == Quit {
				return nil
			}
		}
	}
}

func (t *TerminalSource) translate(k keyboard.KeyEvent, recording *bool) (Kind, bool) {
	if k.Key == keyboard.KeyEsc || k.Key == keyboard.KeyCtrlC {
		return Quit, true
	}
	if t.char != 0 {
		if k.Rune != t.char {
			return 0, false
		}
	} else if k.Key != t.key {
		return 0, false
	}
	*recording = !*recording
	if *recording {
		return Press, true
	}
	return Release, true
}
