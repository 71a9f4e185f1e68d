package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client is the model-service abstraction the engine depends on.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	ChatStream(ctx context.Context, req ChatRequest, onChunk StreamHandler) (*ChatResponse, error)
	Model() string
}

// OpenAIClient talks to any OpenAI-compatible /chat/completions endpoint
// (llama.cpp, vLLM, OpenAI itself). Streaming uses SSE.
type OpenAIClient struct {
	endpoint string
	apiKey   string
	model    string
	dialect  string // schema dialect, see schema_cleaner.go
	http     *http.Client
	retry    RetryConfig
}

// Option configures an OpenAIClient.
type Option func(*OpenAIClient)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *OpenAIClient) { c.http.Timeout = d }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(c *OpenAIClient) { c.retry = cfg }
}

// WithDialect sets the schema dialect for tool parameter cleaning.
func WithDialect(d string) Option {
	return func(c *OpenAIClient) { c.dialect = d }
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
func NewOpenAIClient(endpoint, apiKey, model string, opts ...Option) *OpenAIClient {
	c := &OpenAIClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		model:    model,
		http:     &http.Client{Timeout: 120 * time.Second},
		retry:    DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *OpenAIClient) Model() string { return c.model }

// Chat performs a non-streaming completion. Transient failures are retried
// with backoff before surfacing.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	c.prepare(&req)
	req.Stream = false

	var resp *ChatResponse
	err := withRetry(ctx, c.retry, func() error {
		r, err := c.chatOnce(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

func (c *OpenAIClient) chatOnce(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, status, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(status, body)
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &ProtocolError{Reason: "unparseable completion response", Err: err}
	}
	if len(wire.Choices) == 0 {
		return nil, &ProtocolError{Reason: "response contained no choices"}
	}

	choice := wire.Choices[0]
	return &ChatResponse{
		Content:      choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
		Usage:        wire.Usage,
	}, nil
}

// ChatStream performs a streaming completion, invoking onChunk for every
// delta in arrival order. The returned ChatResponse is the accumulated
// result: concatenated text and tool calls assembled from their fragments.
//
// The stream itself is not retried once chunks have been delivered; only the
// initial connection attempt goes through the retry policy.
func (c *OpenAIClient) ChatStream(ctx context.Context, req ChatRequest, onChunk StreamHandler) (*ChatResponse, error) {
	c.prepare(&req)
	req.Stream = true

	var resp *ChatResponse
	delivered := false
	err := withRetry(ctx, c.retry, func() error {
		r, sawChunks, err := c.streamOnce(ctx, req, onChunk)
		if sawChunks {
			delivered = true
		}
		if err != nil {
			if delivered && IsTransient(err) {
				// A partially consumed stream cannot be replayed.
				return &ProtocolError{Reason: "stream interrupted mid-response", Err: err}
			}
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

func (c *OpenAIClient) streamOnce(ctx context.Context, req ChatRequest, onChunk StreamHandler) (*ChatResponse, bool, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, false, &ProtocolError{Reason: "marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, false, &ProtocolError{Reason: "build request", Err: err}
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, false, wrapTransport(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, false, statusError(httpResp.StatusCode, body)
	}

	var (
		content  strings.Builder
		acc      = newToolCallAccumulator()
		finish   string
		usage    Usage
		sawChunk bool
	)

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var wire wireStreamChunk
		if err := json.Unmarshal([]byte(data), &wire); err != nil {
			return nil, sawChunk, &ProtocolError{Reason: "unparseable stream chunk", Err: err}
		}
		if wire.Usage != nil {
			usage = *wire.Usage
		}
		if len(wire.Choices) == 0 {
			continue
		}

		sawChunk = true
		choice := wire.Choices[0]
		chunk := StreamChunk{Content: choice.Delta.Content}
		for _, tc := range choice.Delta.ToolCalls {
			chunk.ToolCalls = append(chunk.ToolCalls, ToolCallDelta{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		if choice.FinishReason != "" {
			finish = choice.FinishReason
		}

		content.WriteString(chunk.Content)
		acc.add(chunk.ToolCalls)

		if onChunk != nil && (chunk.Content != "" || len(chunk.ToolCalls) > 0) {
			onChunk(chunk)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, sawChunk, wrapTransport(err)
	}

	if onChunk != nil {
		onChunk(StreamChunk{Done: true})
	}

	slog.Debug("stream complete",
		"model", req.Model,
		"content_len", content.Len(),
		"tool_calls", acc.count(),
		"finish", finish,
	)

	return &ChatResponse{
		Content:      content.String(),
		ToolCalls:    acc.calls(),
		FinishReason: finish,
		Usage:        usage,
	}, sawChunk, nil
}

func (c *OpenAIClient) prepare(req *ChatRequest) {
	if req.Model == "" {
		req.Model = c.model
	}
	req.Tools = CleanToolSchemas(c.dialect, req.Tools)
}

func (c *OpenAIClient) post(ctx context.Context, req ChatRequest) ([]byte, int, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, 0, &ProtocolError{Reason: "marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, &ProtocolError{Reason: "build request", Err: err}
	}
	c.setHeaders(httpReq)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, wrapTransport(err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, httpResp.StatusCode, wrapTransport(err)
	}
	return body, httpResp.StatusCode, nil
}

func (c *OpenAIClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" && c.apiKey != "none" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	err := fmt.Errorf("status %d: %s", code, msg)
	if retryableStatus(code) {
		return &TransientError{StatusCode: code, Err: err}
	}
	return &ProtocolError{Reason: "request rejected", Err: err}
}

// toolCallAccumulator assembles complete tool calls from streamed fragments.
// Fragments arrive keyed by index; argument text concatenates in arrival
// order and is never interpreted until the stream finishes.
type toolCallAccumulator struct {
	byIndex map[int]*ToolCall
	order   []int
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIndex: make(map[int]*ToolCall)}
}

func (a *toolCallAccumulator) add(deltas []ToolCallDelta) {
	for _, d := range deltas {
		tc, ok := a.byIndex[d.Index]
		if !ok {
			tc = &ToolCall{Type: "function"}
			a.byIndex[d.Index] = tc
			a.order = append(a.order, d.Index)
		}
		if d.ID != "" {
			tc.ID = d.ID
		}
		if d.Name != "" {
			tc.Function.Name += d.Name
		}
		tc.Function.Arguments += d.Arguments
	}
}

func (a *toolCallAccumulator) count() int { return len(a.order) }

func (a *toolCallAccumulator) calls() []ToolCall {
	if len(a.order) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		out = append(out, *a.byIndex[idx])
	}
	return out
}
