package methods

import (
	"context"
	"encoding/json"

	"github.com/majordomo-ai/majordomo/internal/gateway"
	"github.com/majordomo-ai/majordomo/internal/skills"
	"github.com/majordomo-ai/majordomo/pkg/protocol"
)

// SkillMethods handles skills.list and skills.read.
type SkillMethods struct {
	library *skills.Library
}

func NewSkillMethods(library *skills.Library) *SkillMethods {
	return &SkillMethods{library: library}
}

func (m *SkillMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodSkillsList, m.handleList)
	router.Register(protocol.MethodSkillsRead, m.handleRead)
}

func (m *SkillMethods) handleList(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	list := m.library.List()
	if list == nil {
		list = []skills.Skill{}
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"skills": list}))
}

func (m *SkillMethods) handleRead(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "name is required"))
		return
	}

	content, ok := m.library.Load(params.Name)
	if !ok {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, "unknown skill: "+params.Name))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"name":    params.Name,
		"content": content,
	}))
}
