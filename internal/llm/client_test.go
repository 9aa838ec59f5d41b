package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"github.com/ollama/ollama/api"
)

// fakeOllama serves /api/generate with a scripted NDJSON body and records the
// decoded requests.
type fakeOllama struct {
	mu       sync.Mutex
	requests []api.GenerateRequest
	body     string
	status   int
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead && r.URL.Path == "/" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.URL.Path != "/api/generate" {
		http.NotFound(w, r)
		return
	}

	var req api.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	body, status := f.body, f.status
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if status != 0 {
		w.WriteHeader(status)
	}
	fmt.Fprint(w, body)
}

func newTestClient(t *testing.T, f *fakeOllama) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c, err := NewClient(&Config{Host: srv.URL, Model: "mistral"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestGenerate_ConcatenatesFragmentsAndReturnsContext(t *testing.T) {
	f := &fakeOllama{body: `{"model":"mistral","response":" Hel","done":false}
{"model":"mistral","response":"lo there ","done":false}
{"model":"mistral","response":"","done":true,"context":[4,5,6]}
`}
	c := newTestClient(t, f)

	reply, next, err := c.Generate(context.Background(), "hi", []int{1, 2, 3})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if reply != "Hello there" {
		t.Errorf("reply = %q, want %q", reply, "Hello there")
	}
	if !slices.Equal(next, []int{4, 5, 6}) {
		t.Errorf("context = %v, want [4 5 6]", next)
	}

	if len(f.requests) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(f.requests))
	}
	req := f.requests[0]
	if req.Model != "mistral" || req.Prompt != "hi" {
		t.Errorf("request = %+v", req)
	}
	if !slices.Equal(req.Context, []int{1, 2, 3}) {
		t.Errorf("request context = %v, want [1 2 3]", req.Context)
	}
	if req.Stream == nil || !*req.Stream {
		t.Error("request should ask for a streamed response")
	}
}

func TestGenerate_MissingContextKeepsPrior(t *testing.T) {
	f := &fakeOllama{body: `{"model":"mistral","response":"","done":true}` + "\n"}
	c := newTestClient(t, f)

	reply, next, err := c.Generate(context.Background(), "", []int{9})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty", reply)
	}
	if !slices.Equal(next, []int{9}) {
		t.Errorf("context = %v, want prior [9]", next)
	}
}

func TestGenerate_MalformedStreamIsProtocolError(t *testing.T) {
	f := &fakeOllama{body: `{"response":"ok","done":false}
this is not json
`}
	c := newTestClient(t, f)

	_, next, err := c.Generate(context.Background(), "hi", nil)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
	if next != nil {
		t.Errorf("context on error = %v, want nil", next)
	}
}

func TestGenerate_TruncatedStreamIsProtocolError(t *testing.T) {
	f := &fakeOllama{body: `{"response":"partial","done":false}` + "\n"}
	c := newTestClient(t, f)

	if _, _, err := c.Generate(context.Background(), "hi", nil); !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestGenerate_ServerErrorIsBackendError(t *testing.T) {
	f := &fakeOllama{status: http.StatusInternalServerError, body: `{"error":"model not found"}`}
	c := newTestClient(t, f)

	if _, _, err := c.Generate(context.Background(), "hi", nil); !errors.Is(err, ErrBackend) {
		t.Fatalf("err = %v, want ErrBackend", err)
	}
}

func TestGenerate_UnreachableIsBackendError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(&Config{Host: url, Model: "mistral"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, _, err := c.Generate(context.Background(), "hi", nil); !errors.Is(err, ErrBackend) {
		t.Fatalf("err = %v, want ErrBackend", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrBackend) {
		t.Fatalf("HealthCheck err = %v, want ErrBackend", err)
	}
}

func TestHealthCheck(t *testing.T) {
	c := newTestClient(t, &fakeOllama{})
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
}

func TestNewClient_AcceptsEndpointURL(t *testing.T) {
	f := &fakeOllama{body: `{"response":"ok","done":true,"context":[1]}` + "\n"}
	srv := httptest.NewServer(f)
	defer srv.Close()

	c, err := NewClient(&Config{Host: srv.URL + "/api/generate", Model: "mistral"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if reply, _, err := c.Generate(context.Background(), "hi", nil); err != nil || reply != "ok" {
		t.Fatalf("Generate = (%q, %v), want (ok, nil)", reply, err)
	}
}

func TestNewClient_RequiresModel(t *testing.T) {
	if _, err := NewClient(&Config{Host: "http://localhost:11434"}); err == nil {
		t.Error("expected error for missing model")
	}
}
