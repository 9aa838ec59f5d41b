// Package input turns a single push-to-talk key into press, release and quit
// events.
package input

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Kind is the type of a control event.
type Kind int

const (
	Press Kind = iota
	Release
	Quit
)

func (k Kind) String() string {
	switch k {
	case Press:
		return "press"
	case Release:
		return "release"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// Event is one control transition.
type Event struct {
	Kind Kind
	At   time.Time
}

// Source delivers events until ctx is cancelled or the source fails.
type Source interface {
	Run(ctx context.Context, out chan<- Event) error
}

// Source names accepted by New.
const (
	SourceHook     = "hook"
	SourceTerminal = "terminal"
)

// DefaultKey is the push-to-talk key.
const DefaultKey = "space"

// New returns the named event source bound to key.
func New(source, key string, log *slog.Logger) (Source, error) {
	if key == "" {
		key = DefaultKey
	}
	if log == nil {
		log = slog.Default()
	}
	switch source {
	case SourceHook, "":
		return NewHookSource(key, log)
	case SourceTerminal:
		return NewTerminalSource(key, log)
	default:
		return nil, fmt.Errorf("unknown input source: %s (must be '%s' or '%s')", source, SourceHook, SourceTerminal)
	}
}

// emit sends ev unless ctx is done.
func emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
