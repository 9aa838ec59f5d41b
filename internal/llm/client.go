// Package llm provides the language-model backend via the Ollama generate API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

var (
	// ErrBackend reports that the backend could not be reached or rejected
	// the request.
	ErrBackend = errors.New("language model backend error")

	// ErrProtocol reports a malformed or incomplete response stream.
	ErrProtocol = errors.New("language model protocol error")
)

// Client is a stateless Ollama client. The conversation context token is
// owned by the caller and passed in on every call.
type Client struct {
	client       *api.Client // Official Ollama Go client
	model        string      // LLM model name (e.g., "mistral")
	systemPrompt string
	options      map[string]any
	log          *slog.Logger
}

// Config holds LLM client configuration.
type Config struct {
	Host         string
	Model        string
	SystemPrompt string        // Optional; empty keeps the model's template default
	Temperature  float32       // 0 keeps the model default
	MaxTokens    int           // 0 keeps the model default
	Timeout      time.Duration // Whole-request timeout, including streaming
	Logger       *slog.Logger
}

// NewClient creates a new Ollama client with connection pooling tuned for
// repeated requests to a local server.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	host := strings.TrimSuffix(cfg.Host, "/")
	parsedURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host URL: %w", err)
	}
	// The generate endpoint is addressed by the client; accept the full
	// endpoint URL as well as the bare host.
	parsedURL.Path = strings.TrimSuffix(parsedURL.Path, "/api/generate")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	options := map[string]any{}
	if cfg.Temperature > 0 {
		options["temperature"] = cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		options["num_predict"] = cfg.MaxTokens
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		client:       api.NewClient(parsedURL, httpClient),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		options:      options,
		log:          log.With("component", "llm"),
	}, nil
}

// Generate sends prompt with the prior context token and returns the reply
// and the context token to use on the next call. The response is streamed and
// its fragments concatenated. On error the returned context is nil and the
// caller must keep its previous token.
func (c *Client) Generate(ctx context.Context, prompt string, priorContext []int) (string, []int, error) {
	stream := true
	req := &api.GenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		System:  c.systemPrompt,
		Context: priorContext,
		Stream:  &stream,
	}
	if len(c.options) > 0 {
		req.Options = c.options
	}

	c.log.Debug("sending prompt", "model", c.model, "chars", len(prompt), "context", len(priorContext))

	var (
		reply   strings.Builder
		next    []int
		done    bool
		started = time.Now()
	)
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		reply.WriteString(resp.Response)
		if len(resp.Context) > 0 {
			next = resp.Context
		}
		if resp.Done {
			done = true
		}
		return nil
	})
	if err != nil {
		return "", nil, classify(err)
	}
	if !done {
		return "", nil, fmt.Errorf("%w: stream ended before completion", ErrProtocol)
	}
	if next == nil {
		// Some responses (e.g. an empty prompt that only loads the model)
		// carry no context; the conversation continues from the prior one.
		next = priorContext
	}

	text := strings.TrimSpace(reply.String())
	c.log.Debug("reply received", "chars", len(text), "elapsed", time.Since(started))
	return text, next, nil
}

// classify maps client errors to ErrProtocol for undecodable stream data and
// ErrBackend for everything else.
func classify(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return fmt.Errorf("%w: %w", ErrBackend, err)
}

// HealthCheck verifies the Ollama server is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("%w: cannot reach Ollama: %w", ErrBackend, err)
	}
	return nil
}
