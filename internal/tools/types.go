// Package tools defines the tool capability interface, the registry that
// dispatches model-issued tool calls, and the builtin tool set.
package tools

import (
	"context"

	"github.com/majordomo-ai/majordomo/internal/providers"
)

// Tool is the fixed capability interface every tool implements.
// Sensitive tools require a human approval decision before Execute runs;
// the engine enforces that, tools never check it themselves.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Sensitive() bool
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

type ctxKey int

const (
	ctxKeySession ctxKey = iota
)

// WithSession attaches the session tag to a tool execution context.
// Context values keep tool instances free of mutable per-call state, so one
// instance is safe for concurrent execution.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, ctxKeySession, session)
}

// SessionFromContext returns the session tag, or "" when absent.
func SessionFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeySession).(string); ok {
		return v
	}
	return ""
}

// ToProviderDef converts a Tool into the wire definition sent to the model.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}
