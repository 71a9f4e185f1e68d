package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIClient(srv.URL, "none", "test-model",
		WithRetry(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}))
}

func TestChat_Basic(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"hello"},"finish_reason":"stop"}],"usage":{"total_tokens":7}}`)
	})

	resp, err := client.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("content = %q, want %q", resp.Content, "hello")
	}
	if resp.Usage.TotalTokens != 7 {
		t.Errorf("total tokens = %d, want 7", resp.Usage.TotalTokens)
	}
}

func TestChat_ToolCalls(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"","tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"exec","arguments":"{\"command\":\"ls\"}"}}
		]},"finish_reason":"tool_calls"}]}`)
	})

	resp, err := client.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "exec" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
}

func TestChat_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"recovered"},"finish_reason":"stop"}]}`)
	})

	resp, err := client.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("content = %q", resp.Content)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("server calls = %d, want 2", n)
	}
}

func TestChat_ExhaustedRetriesBecomeProtocolError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Chat(context.Background(), ChatRequest{})
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError after exhausted retries, got %v", err)
	}
}

func TestChat_BadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.Chat(context.Background(), ChatRequest{})
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server calls = %d, want 1 (no retry on 400)", n)
	}
}

func sseHandler(lines ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n\n", l)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func TestChatStream_TextDeltas(t *testing.T) {
	client := testClient(t, sseHandler(
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo "}}]}`,
		`{"choices":[{"delta":{"content":"world"},"finish_reason":"stop"}]}`,
	))

	var streamed string
	var doneSeen bool
	resp, err := client.ChatStream(context.Background(), ChatRequest{}, func(c StreamChunk) {
		if c.Done {
			doneSeen = true
			return
		}
		streamed += c.Content
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if !doneSeen {
		t.Error("done chunk never delivered")
	}
	// Streaming fidelity: concatenated deltas equal the accumulated response.
	if streamed != resp.Content || resp.Content != "Hello world" {
		t.Errorf("streamed=%q accumulated=%q", streamed, resp.Content)
	}
}

func TestChatStream_ToolCallFragments(t *testing.T) {
	client := testClient(t, sseHandler(
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_9","function":{"name":"exec","arguments":"{\"comm"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"and\":\"ls\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	))

	resp, err := client.ChatStream(context.Background(), ChatRequest{}, nil)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "call_9" {
		t.Errorf("id = %q", tc.ID)
	}
	// Fragments concatenate in arrival order into one parseable unit.
	if tc.Function.Arguments != `{"command":"ls"}` {
		t.Errorf("arguments = %q", tc.Function.Arguments)
	}
}

func TestChatStream_MalformedChunk(t *testing.T) {
	client := testClient(t, sseHandler(`{not json`))

	_, err := client.ChatStream(context.Background(), ChatRequest{}, nil)
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProtocolError for malformed chunk, got %v", err)
	}
}
