// Package agent ties the cycle engine to conversations, persistence, and
// the rest of the runtime. The Runtime's Run method is what the scheduler
// invokes when a queued request's turn comes.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/majordomo-ai/majordomo/internal/bus"
	"github.com/majordomo-ai/majordomo/internal/config"
	"github.com/majordomo-ai/majordomo/internal/conversation"
	"github.com/majordomo-ai/majordomo/internal/engine"
	"github.com/majordomo-ai/majordomo/internal/memory"
	"github.com/majordomo-ai/majordomo/internal/scheduler"
	"github.com/majordomo-ai/majordomo/internal/skills"
	"github.com/majordomo-ai/majordomo/pkg/protocol"
)

// Context compaction: when a conversation's estimated token count crosses
// the threshold, older messages are dropped down to keepLastMessages.
const (
	compactThresholdTokens = 24000
	keepLastMessages       = 30
)

// Options wires the Runtime's collaborators. Engine, Store, and Config are
// required; the rest degrade gracefully when nil.
type Options struct {
	Config *config.Config
	Engine *engine.Engine
	Store  *conversation.Store
	Skills *skills.Library
	Memory *memory.Store
	Bus    *bus.MessageBus
}

// Runtime owns the live conversations and executes agent runs.
type Runtime struct {
	cfg    *config.Config
	engine *engine.Engine
	store  *conversation.Store
	skills *skills.Library
	memory *memory.Store
	bus    *bus.MessageBus
	guard  *InputGuard

	mu    sync.Mutex
	convs map[string]*conversation.Conversation

	activeRuns sync.Map // runID → *activeRun
}

type activeRun struct {
	runID     string
	session   string
	cancel    context.CancelFunc
	startedAt time.Time
}

func NewRuntime(opts Options) *Runtime {
	return &Runtime{
		cfg:    opts.Config,
		engine: opts.Engine,
		store:  opts.Store,
		skills: opts.Skills,
		memory: opts.Memory,
		bus:    opts.Bus,
		guard:  NewInputGuard(),
		convs:  make(map[string]*conversation.Conversation),
	}
}

// UpdateConfig swaps the runtime's configuration. New conversations seed
// their system messages from the new settings; collaborators built at
// startup keep the snapshot they were wired with.
func (r *Runtime) UpdateConfig(cfg *config.Config) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

// Run executes one agent run for a scheduled request. It satisfies
// scheduler.RunFunc; the scheduler guarantees at most one Run per session
// at a time, which is what makes the conversation append-only log safe.
func (r *Runtime) Run(ctx context.Context, req scheduler.Request) (*engine.CycleResult, error) {
	if hits := r.guard.Scan(req.Message); len(hits) > 0 {
		slog.Warn("input guard matched", "session", req.Session, "patterns", hits)
	}

	conv, err := r.conversation(req.Session)
	if err != nil {
		return nil, err
	}
	r.maybeCompact(ctx, conv)

	if _, err := conv.Append(conversation.Message{Role: "user", Content: req.Message}); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.activeRuns.Store(runID, &activeRun{runID: runID, session: req.Session, cancel: cancel, startedAt: time.Now()})
	defer r.activeRuns.Delete(runID)

	r.broadcast(req.Session, protocol.RunPayload{Type: protocol.RunEventStarted})

	sink := req.Sink
	if sink == nil {
		sink = engine.NopSink{}
	}
	result, runErr := r.engine.Run(runCtx, conv, r.wrapSink(req.Session, sink))

	if err := r.store.Persist(conv); err != nil {
		slog.Error("persist conversation failed", "session", req.Session, "error", err)
	}

	if runErr != nil && !engine.IsCancelled(runErr) {
		r.broadcast(req.Session, protocol.RunPayload{Type: protocol.RunEventFailed, Detail: runErr.Error()})
	} else if result != nil {
		r.broadcast(req.Session, protocol.RunPayload{
			Type:   protocol.RunEventCompleted,
			Stop:   string(result.Stop),
			Cycles: result.Cycles,
		})
	}
	return result, runErr
}

// AbortSession cancels every active run for a session and returns their IDs.
func (r *Runtime) AbortSession(session string) []string {
	var aborted []string
	r.activeRuns.Range(func(key, val any) bool {
		run := val.(*activeRun)
		if run.session == session {
			run.cancel()
			r.activeRuns.Delete(key)
			aborted = append(aborted, run.runID)
		}
		return true
	})
	return aborted
}

// History returns the message log for a session, loading from disk when the
// conversation is not live. A missing session yields an empty history.
func (r *Runtime) History(session string) ([]conversation.Message, error) {
	conv, err := r.conversation(session)
	if err != nil {
		return nil, err
	}
	return conv.History(), nil
}

// ClearSession drops a session's history, keeping its system messages, and
// removes the persisted record.
func (r *Runtime) ClearSession(session string) error {
	r.mu.Lock()
	conv, ok := r.convs[session]
	if ok {
		conv.Clear()
	}
	r.mu.Unlock()
	return r.store.Delete(session)
}

// Sessions lists persisted conversations, newest first.
func (r *Runtime) Sessions() ([]conversation.SessionInfo, error) {
	return r.store.List()
}

// conversation returns the live conversation for a session, loading the
// persisted record or seeding a fresh one on first use.
func (r *Runtime) conversation(session string) (*conversation.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv, ok := r.convs[session]; ok {
		return conv, nil
	}

	conv, err := r.store.Load(session)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", session, err)
	}
	if conv == nil {
		conv = conversation.New(session, r.systemMessages()...)
		slog.Debug("conversation created", "session", session)
	}
	r.convs[session] = conv
	return conv, nil
}

func (r *Runtime) systemMessages() []string {
	msgs := []string{r.cfg.SystemPrompt(), r.cfg.Core()}
	if r.skills != nil {
		if summary := r.skills.Summary(); summary != "" {
			msgs = append(msgs, summary)
		}
	}
	return msgs
}

// maybeCompact trims a conversation that has outgrown the context budget.
// Before trimming, a coarse episodic note goes to the memory store so the
// dropped span leaves a searchable trace.
func (r *Runtime) maybeCompact(ctx context.Context, conv *conversation.Conversation) {
	tokens := conv.EstimateTokens()
	if tokens < compactThresholdTokens {
		return
	}

	if r.memory != nil {
		if note := compactionNote(conv.History()); note != "" {
			if _, err := r.memory.Save(ctx, conv.Session(), note, "compaction"); err != nil {
				slog.Warn("compaction note not saved", "session", conv.Session(), "error", err)
			}
		}
	}

	before := conv.Len()
	conv.Truncate(keepLastMessages)
	slog.Info("conversation compacted",
		"session", conv.Session(), "tokens", tokens, "dropped", before-conv.Len())
}

// compactionNote summarizes the oldest exchange about to be trimmed.
func compactionNote(history []conversation.Message) string {
	var firstUser, lastAssistant string
	for _, m := range history {
		if m.Role == "user" && firstUser == "" {
			firstUser = m.Content
		}
		if m.Role == "assistant" && m.Content != "" {
			lastAssistant = m.Content
		}
	}
	if firstUser == "" {
		return ""
	}
	note := "Earlier in this conversation the user asked: " + clip(firstUser, 300)
	if lastAssistant != "" {
		note += "\nMost recent answer: " + clip(lastAssistant, 300)
	}
	return note
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// wrapSink fans tool events out to the bus alongside the caller's sink.
func (r *Runtime) wrapSink(session string, inner engine.StreamSink) engine.StreamSink {
	if r.bus == nil {
		return inner
	}
	return engine.SinkFuncs{
		Text: func(delta string) {
			inner.OnTextDelta(delta)
			r.bus.Broadcast(bus.Event{
				Type:    protocol.EventChat,
				Session: session,
				Payload: protocol.ChatPayload{Type: protocol.ChatEventDelta, Content: delta},
			})
		},
		Event: func(ev engine.ToolEvent) {
			inner.OnToolEvent(ev)
			r.bus.Broadcast(bus.Event{
				Type:    protocol.EventRun,
				Session: session,
				Payload: protocol.RunPayload{
					Type:   "tool." + string(ev.Type),
					CallID: ev.CallID,
					Tool:   ev.Tool,
					Detail: ev.Detail,
				},
			})
		},
	}
}

func (r *Runtime) broadcast(session string, payload protocol.RunPayload) {
	if r.bus == nil {
		return
	}
	r.bus.Broadcast(bus.Event{Type: protocol.EventRun, Session: session, Payload: payload})
}
