package input

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	hook "github.com/robotn/gohook"
)

// HookSource reads global key events, so the trigger works whichever window
// has focus.
type HookSource struct {
	key  uint16
	char rune
	esc  uint16
	log  *slog.Logger
}

// NewHookSource binds the trigger to a key name from the gohook keycode table
// (e.g. "space", "f9", "a").
func NewHookSource(key string, log *slog.Logger) (*HookSource, error) {
	code, ok := hook.Keycode[key]
	if !ok {
		return nil, fmt.Errorf("unknown trigger key: %s", key)
	}
	var char rune
	if r := []rune(key); len(r) == 1 {
		char = r[0]
	} else if key == "space" {
		char = ' '
	}
	return &HookSource{
		key:  code,
		char: char,
		esc:  hook.Keycode["esc"],
		log:  log.With("component", "input"),
	}, nil
}

// Run starts the global hook and forwards translated events.
func (h *HookSource) Run(ctx context.Context, out chan<- Event) error {
	events := hook.Start()
	defer hook.End()
	h.log.Info("⌨️ Hold the trigger key to talk, Esc to quit")

	held := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return fmt.Errorf("keyboard hook closed")
			}
			kind, ok := h.translate(e, &held)
			if !ok {
				continue
			}
			if !emit(ctx, out, Event{Kind: kind, At: time.Now()}) {
				return nil
			}
			if kind == Quit {
				return nil
			}
		}
	}
}

// translate maps a raw hook event to a control event. held tracks the key
// state so auto-repeat does not produce extra presses.
func (h *HookSource) translate(e hook.Event, held *bool) (Kind, bool) {
	switch e.Kind {
	case hook.KeyDown, hook.KeyHold:
		if e.Keycode == h.esc && h.esc != 0 {
			return Quit, true
		}
		if !h.matches(e) || *held {
			return 0, false
		}
		*held = true
		return Press, true
	case hook.KeyUp:
		if !h.matches(e) || !*held {
			return 0, false
		}
		*held = false
		return Release, true
	}
	return 0, false
}

func (h *HookSource) matches(e hook.Event) bool {
	if e.Keycode == h.key {
		return true
	}
	return h.char != 0 && e.Keychar == h.char
}
