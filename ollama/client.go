package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// Options are the generation options sent with every chat request.
type Options struct {
	Temperature float64
	// Seed pins generation for reproducible runs; nil leaves it unset.
	Seed *int
}

// Metrics are the usage and timing counters Ollama reports on a completed
// response. Durations are as reported by the server (nanosecond precision).
type Metrics struct {
	PromptTokens   int
	OutputTokens   int
	PromptDuration time.Duration
	EvalDuration   time.Duration
	TotalDuration  time.Duration
}

type Client struct {
	client  *api.Client
	model   string
	baseURL string
	opts    Options
}

func NewClient(baseURL, model string) (*Client, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "qwen3-coder:30b"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	client := api.NewClient(parsedURL, http.DefaultClient)

	return &Client{
		client:  client,
		model:   model,
		baseURL: baseURL,
		opts:    Options{Temperature: 0.7},
	}, nil
}

func (c *Client) SetOptions(opts Options) {
	c.opts = opts
}

func (c *Client) options() map[string]any {
	opts := map[string]any{
		"temperature": c.opts.Temperature,
	}
	if c.opts.Seed != nil {
		opts["seed"] = *c.opts.Seed
	}
	return opts
}

// Chat sends a non-streaming request and returns the complete assistant
// message plus the server's usage counters.
func (c *Client) Chat(ctx context.Context, messages []api.Message) (string, Metrics, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  c.options(),
	}

	var content string
	var metrics Metrics
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content = resp.Message.Content
		metrics = Metrics{
			PromptTokens:   resp.Metrics.PromptEvalCount,
			OutputTokens:   resp.Metrics.EvalCount,
			PromptDuration: resp.Metrics.PromptEvalDuration,
			EvalDuration:   resp.Metrics.EvalDuration,
			TotalDuration:  resp.Metrics.TotalDuration,
		}
		return nil
	})
	if err != nil {
		return "", Metrics{}, fmt.Errorf("chat request failed: %w", err)
	}

	return content, metrics, nil
}

// ChatStream sends a streaming request and invokes fn for each content
// fragment in arrival order. Returning an error from fn aborts the stream.
func (c *Client) ChatStream(ctx context.Context, messages []api.Message, fn func(chunk string) error) error {
	stream := true
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  c.options(),
	}

	return c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		return fn(resp.Message.Content)
	})
}

func (c *Client) SetModel(model string) {
	c.model = model
}

func (c *Client) GetModel() string {
	return c.model
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.List(ctx)
	return err
}
