package visual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// PulsePath is where renderers connect.
	PulsePath = "/pulse"

	clientBuffer = 8
	writeTimeout = time.Second
)

// wireFrame is the JSON sent to clients.
type wireFrame struct {
	Intensity float64 `json:"intensity"`
	ElapsedMs int64   `json:"elapsedMs"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Local renderer pages are served from file:// or another port
		return true
	},
}

// Broadcaster sends every frame to connected WebSocket clients. A client
// whose buffer is full misses frames instead of stalling the main loop.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     *slog.Logger
}

type client struct {
	conn   *websocket.Conn
	frames chan wireFrame
}

// NewBroadcaster creates a broadcaster with no clients.
func NewBroadcaster(log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		clients: make(map[*client]struct{}),
		log:     log.With("component", "visualizer"),
	}
}

// Render queues f for every client.
func (b *Broadcaster) Render(f Frame) {
	wf := wireFrame{
		Intensity: f.Intensity,
		ElapsedMs: f.Elapsed.Milliseconds(),
		Width:     f.Width,
		Height:    f.Height,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.frames <- wf:
		default:
		}
	}
}

// ClientCount reports connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// ServeHTTP upgrades the request and streams frames until the client leaves.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, frames: make(chan wireFrame, clientBuffer)}
	b.add(c)
	defer func() {
		b.remove(c)
		_ = conn.Close()
	}()
	b.log.Info("🖥️ Visualizer connected", "remote", r.RemoteAddr)

	// Reader detects the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			b.log.Info("Visualizer disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case f := <-c.frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(f); err != nil {
				b.log.Debug("WebSocket write failed", "error", err)
				return
			}
		}
	}
}

func (b *Broadcaster) add(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = struct{}{}
}

func (b *Broadcaster) remove(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, c)
}

// closeAll drops every client. Hijacked connections are not closed by
// http.Server.Shutdown.
func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		_ = c.conn.Close()
	}
}

// Serve listens on addr until ctx is cancelled.
func (b *Broadcaster) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(PulsePath, b)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		b.closeAll()
	}()

	b.log.Info("🌐 Visualizer endpoint", "url", fmt.Sprintf("ws://%s%s", addr, PulsePath))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("visualizer server: %w", err)
	}
	return nil
}
