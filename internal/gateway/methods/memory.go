package methods

import (
	"context"
	"encoding/json"

	"github.com/majordomo-ai/majordomo/internal/gateway"
	"github.com/majordomo-ai/majordomo/internal/memory"
	"github.com/majordomo-ai/majordomo/pkg/protocol"
)

// MemoryMethods handles memory.search and memory.save.
type MemoryMethods struct {
	store *memory.Store
}

func NewMemoryMethods(store *memory.Store) *MemoryMethods {
	return &MemoryMethods{store: store}
}

func (m *MemoryMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodMemorySearch, m.handleSearch)
	router.Register(protocol.MethodMemorySave, m.handleSave)
}

func (m *MemoryMethods) handleSearch(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Query == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "query is required"))
		return
	}

	hits, err := m.store.Search(ctx, params.Query, params.Limit)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, err.Error()))
		return
	}
	if hits == nil {
		hits = []memory.SearchHit{}
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"hits": hits}))
}

func (m *MemoryMethods) handleSave(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Session string `json:"session"`
		Text    string `json:"text"`
		Tags    string `json:"tags"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Text == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "text is required"))
		return
	}
	if params.Session == "" {
		params.Session = "gateway:" + client.ID()
	}

	id, err := m.store.Save(ctx, params.Session, params.Text, params.Tags)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"id": id}))
}
