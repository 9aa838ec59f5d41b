// Package queue holds the hand-off helpers shared by the pipeline stages.
package queue

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSendTimeout bounds each wait of a writer on a full queue. After every
// timeout the writer re-checks for shutdown and keeps waiting.
const DefaultSendTimeout = time.Second

// Send delivers v on ch, waiting while the queue is full. The value is never
// dropped while ctx is alive; each timeout only logs and re-checks ctx.
// Returns false if ctx was cancelled before v could be delivered.
func Send[T any](ctx context.Context, ch chan<- T, v T, timeout time.Duration, log *slog.Logger, what string) bool {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for waited := time.Duration(0); ; waited += timeout {
		select {
		case ch <- v:
			return true
		case <-ctx.Done():
			return false
		case <-timer.C:
			if log != nil {
				log.Warn("queue full, consumer is behind", "queue", what, "waited", waited+timeout)
			}
			timer.Reset(timeout)
		}
	}
}

// Drain removes all pending values from ch without blocking and returns them
// in arrival order. A closed channel yields whatever was buffered.
func Drain[T any](ch <-chan T) []T {
	var out []T
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
}
