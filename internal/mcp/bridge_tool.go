// Package mcp bridges tools exposed by MCP servers into the local registry.
package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/majordomo-ai/majordomo/internal/tools"
)

// BridgeTool adapts one MCP tool into the tools.Tool interface, delegating
// Execute to the owning server over the client connection.
type BridgeTool struct {
	serverName     string
	toolName       string // original MCP tool name
	registeredName string // "{prefix}__{toolName}" when a prefix is set
	description    string
	inputSchema    map[string]interface{}
	sensitive      bool
	client         *mcpclient.Client
	timeout        time.Duration
	connected      *atomic.Bool
}

func NewBridgeTool(serverName string, mcpTool mcpgo.Tool, client *mcpclient.Client, prefix string, timeout time.Duration, sensitive bool, connected *atomic.Bool) *BridgeTool {
	registered := mcpTool.Name
	if prefix != "" {
		registered = prefix + "__" + mcpTool.Name
	}
	if timeout <= 0 {
		timeout = time.Minute
	}

	return &BridgeTool{
		serverName:     serverName,
		toolName:       mcpTool.Name,
		registeredName: registered,
		description:    mcpTool.Description,
		inputSchema:    inputSchemaToMap(mcpTool.InputSchema),
		sensitive:      sensitive,
		client:         client,
		timeout:        timeout,
		connected:      connected,
	}
}

func (t *BridgeTool) Name() string                       { return t.registeredName }
func (t *BridgeTool) Description() string                { return t.description }
func (t *BridgeTool) Parameters() map[string]interface{} { return t.inputSchema }
func (t *BridgeTool) Sensitive() bool                    { return t.sensitive }

// ServerName returns the MCP server this tool belongs to.
func (t *BridgeTool) ServerName() string { return t.serverName }

func (t *BridgeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	if !t.connected.Load() {
		return tools.ErrorResult(fmt.Sprintf("MCP server %q is disconnected", t.serverName))
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = t.toolName
	req.Params.Arguments = args

	result, err := t.client.CallTool(callCtx, req)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return tools.ErrorResult(fmt.Sprintf("MCP tool %q timed out after %s", t.registeredName, t.timeout))
		}
		return tools.ErrorResult(fmt.Sprintf("MCP tool %q: %v", t.registeredName, err))
	}

	text := extractTextContent(result)
	if result.IsError {
		return tools.ErrorResult(text)
	}
	return tools.NewResult(text)
}

// inputSchemaToMap converts the MCP schema into the registry's parameter map.
func inputSchemaToMap(schema mcpgo.ToolInputSchema) map[string]interface{} {
	m := map[string]interface{}{"type": schema.Type}
	if schema.Type == "" {
		m["type"] = "object"
	}
	if len(schema.Properties) > 0 {
		m["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	if schema.AdditionalProperties != nil {
		m["additionalProperties"] = schema.AdditionalProperties
	}
	return m
}

// extractTextContent concatenates the text parts of a tool result. Non-text
// content is noted rather than dropped so the model knows it existed.
func extractTextContent(result *mcpgo.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[non-text content: %T]", c))
		}
	}
	return strings.Join(parts, "\n")
}
