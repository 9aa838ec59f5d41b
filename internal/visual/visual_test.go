package visual

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{-0.5, 0}, {0, 0}, {0.5, 20}, {1, 40}, {3, 40},
	}
	for _, tt := range tests {
		if got := Level(tt.in, 40); got != tt.want {
			t.Errorf("Level(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTerminalRedrawsOnlyOnChange(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)

	term.Render(Frame{Intensity: 0.5, Elapsed: 0})
	term.Render(Frame{Intensity: 0.5, Elapsed: time.Second}) // same level
	term.Render(Frame{Intensity: 0.9, Elapsed: time.Second + time.Millisecond})
	term.Render(Frame{Intensity: 0.1, Elapsed: 2 * time.Second})
	term.Render(Frame{Intensity: 0.3, Elapsed: 2*time.Second + 10*time.Millisecond}) // throttled

	if got := strings.Count(buf.String(), "\r"); got != 3 {
		t.Errorf("drew %d times, want 2: %q", got, buf.String())
	}
	if !strings.HasSuffix(buf.String(), Bar(Level(0.1, barWidth), barWidth)) {
		t.Errorf("last bar = %q", buf.String())
	}
}

func TestNew(t *testing.T) {
	for _, kind := range []string{"", KindNone, KindTerminal, KindWebSocket} {
		if _, err := New(kind, &bytes.Buffer{}, nil); err != nil {
			t.Errorf("New(%q): %v", kind, err)
		}
	}
	if _, err := New("hologram", nil, nil); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestBroadcasterStreamsFrames(t *testing.T) {
	b := NewBroadcaster(nil)
	srv := httptest.NewServer(b)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + PulsePath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Render(Frame{Intensity: 0.75, Elapsed: 1500 * time.Millisecond, Width: 800, Height: 600})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got wireFrame
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	want := wireFrame{Intensity: 0.75, ElapsedMs: 1500, Width: 800, Height: 600}
	if got != want {
		t.Errorf("frame = %+v, want %+v", got, want)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for b.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcasterSkipsFullClients(t *testing.T) {
	b := NewBroadcaster(nil)
	c := &client{frames: make(chan wireFrame, 1)}
	b.add(c)

	done := make(chan struct{})
	go func() {
		for i := range 10 {
			b.Render(Frame{Intensity: float64(i) / 10})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Render blocked on a slow client")
	}
	if f := <-c.frames; f.Intensity != 0 {
		t.Errorf("kept frame %v, want the first one", f.Intensity)
	}
}
