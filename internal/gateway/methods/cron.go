package methods

import (
	"context"
	"encoding/json"

	"github.com/majordomo-ai/majordomo/internal/cron"
	"github.com/majordomo-ai/majordomo/internal/gateway"
	"github.com/majordomo-ai/majordomo/pkg/protocol"
)

// CronMethods handles the cron.* job management RPCs.
type CronMethods struct {
	service *cron.Service
}

func NewCronMethods(service *cron.Service) *CronMethods {
	return &CronMethods{service: service}
}

func (m *CronMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodCronList, m.handleList)
	router.Register(protocol.MethodCronAdd, m.handleAdd)
	router.Register(protocol.MethodCronRemove, m.handleRemove)
	router.Register(protocol.MethodCronEnable, m.handleEnable)
	router.Register(protocol.MethodCronUpdate, m.handleUpdate)
	router.Register(protocol.MethodCronRun, m.handleRun)
	router.Register(protocol.MethodCronRunLog, m.handleRunLog)
}

func (m *CronMethods) handleList(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		IncludeDisabled bool `json:"include_disabled"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	jobs := m.service.List(params.IncludeDisabled)
	if jobs == nil {
		jobs = []cron.Job{}
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"jobs": jobs}))
}

func (m *CronMethods) handleAdd(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Name     string        `json:"name"`
		Schedule cron.Schedule `json:"schedule"`
		Payload  cron.Payload  `json:"payload"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "invalid params: "+err.Error()))
		return
	}

	job, err := m.service.Add(params.Name, params.Schedule, params.Payload)
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"job": job}))
}

func (m *CronMethods) handleRemove(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	id, ok := jobID(client, req)
	if !ok {
		return
	}
	if err := m.service.Remove(id); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"removed": true}))
}

func (m *CronMethods) handleEnable(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID      string `json:"id"`
		Enabled *bool  `json:"enabled"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" || params.Enabled == nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "id and enabled are required"))
		return
	}
	if err := m.service.Enable(params.ID, *params.Enabled); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"enabled": *params.Enabled}))
}

func (m *CronMethods) handleUpdate(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID             string         `json:"id"`
		Name           string         `json:"name"`
		Enabled        *bool          `json:"enabled"`
		Schedule       *cron.Schedule `json:"schedule"`
		Message        string         `json:"message"`
		Deliver        *bool          `json:"deliver"`
		Channel        *string        `json:"channel"`
		To             *string        `json:"to"`
		DeleteAfterRun *bool          `json:"delete_after_run"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "id is required"))
		return
	}

	job, err := m.service.Update(params.ID, cron.JobPatch{
		Name:           params.Name,
		Enabled:        params.Enabled,
		Schedule:       params.Schedule,
		Message:        params.Message,
		Deliver:        params.Deliver,
		Channel:        params.Channel,
		To:             params.To,
		DeleteAfterRun: params.DeleteAfterRun,
	})
	if err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"job": job}))
}

func (m *CronMethods) handleRun(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID    string `json:"id"`
		Force bool   `json:"force"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "id is required"))
		return
	}

	ran, result, err := m.service.Run(params.ID, params.Force)
	if err != nil && !ran {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, err.Error()))
		return
	}
	resp := map[string]any{"ran": ran}
	if err != nil {
		resp["error"] = err.Error()
	} else if ran {
		resp["result"] = result
	} else {
		resp["reason"] = result
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, resp))
}

func (m *CronMethods) handleRunLog(_ context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID    string `json:"id"`
		Limit int    `json:"limit"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	entries := m.service.RunLog(params.ID, params.Limit)
	if entries == nil {
		entries = []cron.RunLogEntry{}
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{"entries": entries}))
}

func jobID(client *gateway.Client, req *protocol.RequestFrame) (string, bool) {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "id is required"))
		return "", false
	}
	return params.ID, true
}
