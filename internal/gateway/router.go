package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/majordomo-ai/majordomo/pkg/protocol"
)

// MethodHandler processes one RPC request.
type MethodHandler func(ctx context.Context, client *Client, req *protocol.RequestFrame)

// MethodRouter maps method names to handlers.
type MethodRouter struct {
	handlers map[string]MethodHandler
	server   *Server
}

func NewMethodRouter(server *Server) *MethodRouter {
	r := &MethodRouter{
		handlers: make(map[string]MethodHandler),
		server:   server,
	}
	r.Register(protocol.MethodConnect, r.handleConnect)
	r.Register(protocol.MethodHealth, r.handleHealth)
	r.Register(protocol.MethodStatus, r.handleStatus)
	return r
}

// Register adds a method handler.
func (r *MethodRouter) Register(method string, handler MethodHandler) {
	r.handlers[method] = handler
}

// Handle dispatches a request, applying the rate limit to everything but
// the handshake.
func (r *MethodRouter) Handle(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	handler, ok := r.handlers[req.Method]
	if !ok {
		slog.Warn("unknown method", "method", req.Method, "client", client.id)
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "unknown method: "+req.Method))
		return
	}

	if req.Method != protocol.MethodConnect && !r.server.limiter.Allow(client.id) {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrResourceExhausted, "rate limit exceeded"))
		return
	}

	slog.Debug("handling method", "method", req.Method, "client", client.id, "req_id", req.ID)
	handler(ctx, client, req)
}

func (r *MethodRouter) handleConnect(_ context.Context, client *Client, req *protocol.RequestFrame) {
	var params struct {
		Token string `json:"token"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}

	token := r.server.cfg.Gateway.Token
	if token != "" && params.Token != token {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrUnauthorized, "invalid token"))
		return
	}

	client.authenticated.Store(true)
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"protocol": protocol.ProtocolVersion,
		"server": map[string]any{
			"name":    "majordomo",
			"version": "0.1.0",
		},
	}))
}

func (r *MethodRouter) handleHealth(_ context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"status": "ok"}))
}

func (r *MethodRouter) handleStatus(_ context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"clients": r.server.ClientCount(),
		"model":   r.server.cfg.Provider.Model,
	}))
}
