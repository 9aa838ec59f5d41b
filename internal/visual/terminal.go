package visual

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

const (
	barWidth        = 40
	terminalRefresh = 50 * time.Millisecond
)

// Terminal draws the intensity as a one-line bar redrawn in place.
type Terminal struct {
	w         io.Writer
	last      time.Duration
	lastLevel int
	drawn     bool
}

// NewTerminal writes the bar to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w, lastLevel: -1}
}

// Render redraws the bar when the level changed and the refresh period has
// passed since the last draw.
func (t *Terminal) Render(f Frame) {
	level := Level(f.Intensity, barWidth)
	if level == t.lastLevel {
		return
	}
	if t.drawn && f.Elapsed-t.last < terminalRefresh && f.Elapsed >= t.last {
		return
	}
	t.last = f.Elapsed
	t.lastLevel = level
	t.drawn = true
	fmt.Fprintf(t.w, "\r%s", Bar(level, barWidth))
}

// Level quantizes intensity in [0,1] to 0..width.
func Level(intensity float64, width int) int {
	intensity = math.Max(0, math.Min(1, intensity))
	return int(math.Round(intensity * float64(width)))
}

// Bar renders level filled cells out of width.
func Bar(level, width int) string {
	return "🔊 [" + strings.Repeat("█", level) + strings.Repeat(" ", width-level) + "]"
}
