package methods

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/majordomo-ai/majordomo/internal/approval"
	"github.com/majordomo-ai/majordomo/internal/gateway"
	"github.com/majordomo-ai/majordomo/pkg/protocol"
)

// ApprovalMethods handles approvals.list, approvals.approve, approvals.deny,
// approvals.audit.
type ApprovalMethods struct {
	gate *approval.Gate
}

func NewApprovalMethods(gate *approval.Gate) *ApprovalMethods {
	return &ApprovalMethods{gate: gate}
}

func (m *ApprovalMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodApprovalsList, m.handleList)
	router.Register(protocol.MethodApprovalsApprove, m.resolver(approval.OutcomeApproved))
	router.Register(protocol.MethodApprovalsDeny, m.resolver(approval.OutcomeDenied))
	router.Register(protocol.MethodApprovalsAudit, m.handleAudit)
}

func (m *ApprovalMethods) handleList(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"pending": m.gate.ListPending(),
	}))
}

// resolver builds the approve/deny handler for one outcome; both share the
// same parameter shape and exactly-once resolution semantics.
func (m *ApprovalMethods) resolver(outcome approval.Outcome) gateway.MethodHandler {
	return func(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
		var params struct {
			ID        string `json:"id"`
			DecidedBy string `json:"decided_by"`
		}
		if req.Params != nil {
			json.Unmarshal(req.Params, &params)
		}
		if params.ID == "" {
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "id is required"))
			return
		}
		decidedBy := params.DecidedBy
		if decidedBy == "" {
			decidedBy = "gateway:" + client.ID()
		}

		if err := m.gate.Resolve(params.ID, outcome, decidedBy); err != nil {
			if errors.Is(err, approval.ErrUnknownApproval) {
				client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, err.Error()))
				return
			}
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, err.Error()))
			return
		}
		client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
			"resolved": true,
			"outcome":  string(outcome),
		}))
	}
}

func (m *ApprovalMethods) handleAudit(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Limit int `json:"limit"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"decisions": m.gate.Audit(params.Limit),
	}))
}
