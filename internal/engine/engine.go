package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/majordomo-ai/majordomo/internal/approval"
	"github.com/majordomo-ai/majordomo/internal/conversation"
	"github.com/majordomo-ai/majordomo/internal/providers"
	"github.com/majordomo-ai/majordomo/internal/tools"
)

// Config bounds one engine instance.
type Config struct {
	MaxCycles       int           // model calls per run before aborting
	ToolConcurrency int64         // parallel tool executions within a round
	ToolTimeout     time.Duration // per tool execution
	Temperature     float64
}

func (c *Config) applyDefaults() {
	if c.MaxCycles <= 0 {
		c.MaxCycles = 8
	}
	if c.ToolConcurrency <= 0 {
		c.ToolConcurrency = 4
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = 2 * time.Minute
	}
}

// Engine owns the cycle loop. One engine serves many conversations, but the
// scheduler guarantees at most one active run per conversation, so the log
// is appended from a single run at a time.
type Engine struct {
	client   providers.Client
	registry *tools.Registry
	gate     *approval.Gate
	cfg      Config
}

func New(client providers.Client, registry *tools.Registry, gate *approval.Gate, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{client: client, registry: registry, gate: gate, cfg: cfg}
}

// Run executes cycles until the model answers without tool calls, the cycle
// cap is hit, or an unrecoverable error occurs. The returned CycleResult is
// never nil; err is non-nil exactly when the run did not complete normally.
func (e *Engine) Run(ctx context.Context, conv *conversation.Conversation, sink StreamSink) (*CycleResult, error) {
	if sink == nil {
		sink = NopSink{}
	}
	result := &CycleResult{}

	for result.Cycles < e.cfg.MaxCycles {
		result.Cycles++

		resp, err := e.callModel(ctx, conv, sink)
		if err != nil {
			if ctx.Err() != nil {
				result.Stop = StopCancelled
				return result, ctx.Err()
			}
			result.Stop = StopProtocolError
			return result, err
		}

		if _, err := conv.Append(conversation.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}); err != nil {
			result.Stop = StopProtocolError
			return result, err
		}

		if len(resp.ToolCalls) == 0 {
			result.FinalText = resp.Content
			result.Stop = StopDone
			return result, nil
		}

		// Validate every name up front: an unknown tool aborts the whole
		// round before anything runs.
		for _, call := range resp.ToolCalls {
			if _, ok := e.registry.Resolve(call.Function.Name); !ok {
				sink.OnToolEvent(ToolEvent{Type: ToolErrored, CallID: call.ID, Tool: call.Function.Name, Detail: "not registered"})
				result.Stop = StopToolNotFound
				return result, fmt.Errorf("%w: %q", ErrToolNotFound, call.Function.Name)
			}
		}

		outputs := e.runRound(ctx, conv.Session(), resp.ToolCalls, sink)

		// Results go into the log in call order regardless of completion
		// order, so the model sees a deterministic transcript.
		for i, call := range resp.ToolCalls {
			if _, err := conv.Append(conversation.Message{
				Role:       "tool",
				Name:       call.Function.Name,
				Content:    outputs[i],
				ToolCallID: call.ID,
			}); err != nil {
				result.Stop = StopProtocolError
				return result, err
			}
		}

		if ctx.Err() != nil {
			result.Stop = StopCancelled
			return result, ctx.Err()
		}
	}

	result.Stop = StopMaxCycles
	return result, fmt.Errorf("%w after %d cycles", ErrMaxCyclesExceeded, result.Cycles)
}

// callModel streams one completion, forwarding text deltas in arrival order.
// Tool-call fragments stay internal; the client accumulates them and hands
// back complete calls only once the stream ends.
func (e *Engine) callModel(ctx context.Context, conv *conversation.Conversation, sink StreamSink) (*providers.ChatResponse, error) {
	req := providers.ChatRequest{
		Messages:    conv.WireHistory(),
		Tools:       e.registry.ProviderDefs(),
		Temperature: e.cfg.Temperature,
	}
	return e.client.ChatStream(ctx, req, func(chunk providers.StreamChunk) {
		if chunk.Content != "" {
			sink.OnTextDelta(chunk.Content)
		}
	})
}

// runRound resolves all calls of one model response, up to ToolConcurrency
// at a time. It returns one output string per call, index-aligned with the
// input. Every call reaches a terminal state before runRound returns.
func (e *Engine) runRound(ctx context.Context, session string, calls []providers.ToolCall, sink StreamSink) []string {
	outputs := make([]string, len(calls))
	sem := semaphore.NewWeighted(e.cfg.ToolConcurrency)
	var wg sync.WaitGroup

	for i := range calls {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancelled while waiting for a slot; calls that have not
			// started must never start.
			for j := i; j < len(calls); j++ {
				outputs[j] = "Cancelled before execution."
			}
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			outputs[i] = e.resolveCall(ctx, session, calls[i], sink)
		}(i)
	}

	wg.Wait()
	return outputs
}

// resolveCall takes one tool call to a terminal state: executed, denied,
// timed out, errored, or cancelled.
func (e *Engine) resolveCall(ctx context.Context, session string, call providers.ToolCall, sink StreamSink) string {
	name := call.Function.Name
	sink.OnToolEvent(ToolEvent{Type: ToolRequested, CallID: call.ID, Tool: name})

	tool, _ := e.registry.Resolve(name)
	if tool.Sensitive() {
		verdict, ok := e.awaitApproval(ctx, session, call, sink)
		if !ok {
			return verdict
		}
	}

	if ctx.Err() != nil {
		return "Cancelled before execution."
	}

	tctx, cancel := context.WithTimeout(tools.WithSession(ctx, session), e.cfg.ToolTimeout)
	defer cancel()

	res := e.registry.Execute(tctx, name, call.Function.Arguments)
	if res.IsError {
		sink.OnToolEvent(ToolEvent{Type: ToolErrored, CallID: call.ID, Tool: name, Detail: res.ForLLM})
		slog.Warn("tool call failed", "tool", name, "call_id", call.ID)
		return res.ForLLM
	}
	sink.OnToolEvent(ToolEvent{Type: ToolExecuted, CallID: call.ID, Tool: name})
	return res.ForLLM
}

// awaitApproval suspends on the gate. ok is true only for an explicit
// approval; any other outcome returns the message to report to the model,
// and the handler never runs.
func (e *Engine) awaitApproval(ctx context.Context, session string, call providers.ToolCall, sink StreamSink) (string, bool) {
	name := call.Function.Name
	prompt := fmt.Sprintf("%s(%s)", name, truncateArgs(call.Function.Arguments))
	sink.OnToolEvent(ToolEvent{Type: ToolAwaitingApproval, CallID: call.ID, Tool: name, Detail: prompt})

	decision := e.gate.Request(ctx, session, call.ID, name, prompt)
	switch decision.Outcome {
	case approval.OutcomeApproved:
		sink.OnToolEvent(ToolEvent{Type: ToolApproved, CallID: call.ID, Tool: name, Detail: decision.DecidedBy})
		return "", true
	case approval.OutcomeTimeout:
		sink.OnToolEvent(ToolEvent{Type: ToolDenied, CallID: call.ID, Tool: name, Detail: "timed out"})
		return "Approval request timed out; the action was not executed.", false
	case approval.OutcomeCancelled:
		sink.OnToolEvent(ToolEvent{Type: ToolDenied, CallID: call.ID, Tool: name, Detail: "cancelled"})
		return "Cancelled before approval; the action was not executed.", false
	default:
		sink.OnToolEvent(ToolEvent{Type: ToolDenied, CallID: call.ID, Tool: name, Detail: decision.DecidedBy})
		return fmt.Sprintf("Denied by %s; the action was not executed.", orUnknown(decision.DecidedBy)), false
	}
}

func truncateArgs(args string) string {
	const max = 200
	if len(args) <= max {
		return args
	}
	return args[:max] + "..."
}

func orUnknown(s string) string {
	if s == "" {
		return "the user"
	}
	return s
}

// IsCancelled reports whether err is a context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
