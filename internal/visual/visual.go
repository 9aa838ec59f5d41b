// Package visual forwards per-frame pulse intensity to a presentation layer.
package visual

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Frame is the numeric contract with the visualizer.
type Frame struct {
	Intensity float64       `json:"intensity"`
	Elapsed   time.Duration `json:"-"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
}

// Renderer consumes frames. Render is called from the main loop and must not
// block on I/O.
type Renderer interface {
	Render(f Frame)
}

// Renderer kinds accepted by New.
const (
	KindNone      = "none"
	KindTerminal  = "terminal"
	KindWebSocket = "websocket"
)

// Nop discards frames.
type Nop struct{}

func (Nop) Render(Frame) {}

// New builds the renderer for kind. Terminal output goes to w.
func New(kind string, w io.Writer, log *slog.Logger) (Renderer, error) {
	switch kind {
	case KindNone, "":
		return Nop{}, nil
	case KindTerminal:
		return NewTerminal(w), nil
	case KindWebSocket:
		return NewBroadcaster(log), nil
	default:
		return nil, fmt.Errorf("unknown visualizer: %s", kind)
	}
}
