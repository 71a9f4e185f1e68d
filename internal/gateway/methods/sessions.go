package methods

import (
	"context"
	"encoding/json"

	"github.com/majordomo-ai/majordomo/internal/agent"
	"github.com/majordomo-ai/majordomo/internal/conversation"
	"github.com/majordomo-ai/majordomo/internal/gateway"
	"github.com/majordomo-ai/majordomo/pkg/protocol"
)

// SessionMethods handles sessions.list and sessions.clear.
type SessionMethods struct {
	runtime *agent.Runtime
}

func NewSessionMethods(runtime *agent.Runtime) *SessionMethods {
	return &SessionMethods{runtime: runtime}
}

func (m *SessionMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodSessionsList, m.handleList)
	router.Register(protocol.MethodSessionsClear, m.handleClear)
}

func (m *SessionMethods) handleList(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	sessions, err := m.runtime.Sessions()
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, err.Error()))
		return
	}
	if sessions == nil {
		sessions = []conversation.SessionInfo{}
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"sessions": sessions}))
}

func (m *SessionMethods) handleClear(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Session string `json:"session"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Session == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "session is required"))
		return
	}
	if err := m.runtime.ClearSession(params.Session); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"cleared": true}))
}
