// Package methods implements the gateway RPC method sets. Each set bundles
// related handlers around the runtime component they drive and registers
// itself on the method router.
package methods

import (
	"context"
	"encoding/json"

	"github.com/majordomo-ai/majordomo/internal/agent"
	"github.com/majordomo-ai/majordomo/internal/gateway"
	"github.com/majordomo-ai/majordomo/internal/scheduler"
	"github.com/majordomo-ai/majordomo/pkg/protocol"
)

// ChatMethods handles chat.send, chat.history, chat.abort.
type ChatMethods struct {
	runtime *agent.Runtime
	sched   *scheduler.Scheduler
}

func NewChatMethods(runtime *agent.Runtime, sched *scheduler.Scheduler) *ChatMethods {
	return &ChatMethods{runtime: runtime, sched: sched}
}

func (m *ChatMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodChatSend, m.handleSend)
	router.Register(protocol.MethodChatHistory, m.handleHistory)
	router.Register(protocol.MethodChatAbort, m.handleAbort)
}

type chatSendParams struct {
	Session string `json:"session"`
	Message string `json:"message"`
}

func (m *ChatMethods) handleSend(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params chatSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "invalid params: "+err.Error()))
		return
	}
	if params.Message == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "message is required"))
		return
	}
	session := params.Session
	if session == "" {
		session = "gateway:" + client.ID()
	}

	// Text deltas and tool events reach the client as event frames via the
	// bus; the response frame carries only the final outcome.
	outcomeCh := m.sched.Schedule(ctx, "main", scheduler.Request{
		Session: session,
		Message: params.Message,
	})

	go func() {
		out := <-outcomeCh
		if out.Err != nil {
			if ctx.Err() != nil {
				return
			}
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, out.Err.Error()))
			return
		}
		client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
			"session": session,
			"content": out.Result.FinalText,
			"stop":    string(out.Result.Stop),
			"cycles":  out.Result.Cycles,
		}))
	}()
}

func (m *ChatMethods) handleHistory(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Session string `json:"session"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "invalid params: "+err.Error()))
		return
	}
	if params.Session == "" {
		params.Session = "gateway:" + client.ID()
	}

	history, err := m.runtime.History(params.Session)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"session":  params.Session,
		"messages": history,
	}))
}

func (m *ChatMethods) handleAbort(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Session string `json:"session"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "invalid params: "+err.Error()))
		return
	}
	if params.Session == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "session is required"))
		return
	}

	aborted := m.runtime.AbortSession(params.Session)
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"aborted": len(aborted) > 0,
		"run_ids": aborted,
	}))
}
