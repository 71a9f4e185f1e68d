package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/majordomo-ai/majordomo/internal/providers"
)

// ErrDuplicateTool is returned when registering a name that already exists.
var ErrDuplicateTool = errors.New("tools: duplicate tool name")

// ErrRegistryFrozen is returned when registering after Freeze.
var ErrRegistryFrozen = errors.New("tools: registry is frozen")

// Registry maps tool names to implementations. It is built once at startup,
// frozen, and read-only afterward; lookups are O(1).
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]Tool
	order       []string // registration order, for stable ProviderDefs
	frozen      bool
	rateLimiter *RateLimiter // nil = no limiting
	scrubbing   bool
}

func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		scrubbing: true,
	}
}

// SetRateLimiter enables per-session tool rate limiting.
func (r *Registry) SetRateLimiter(rl *RateLimiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimiter = rl
}

// SetScrubbing toggles credential scrubbing on tool output.
func (r *Registry) SetScrubbing(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrubbing = enabled
}

// Register adds a tool. Duplicate names and post-freeze registration fail.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Freeze marks the registry read-only. Called once after startup wiring.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Resolve returns a tool by name.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute validates arguments and runs the named tool. Argument validation
// failures and handler errors come back as error Results so the engine can
// report them to the model; only an unknown name is the caller's problem.
func (r *Registry) Execute(ctx context.Context, name, rawArgs string) *Result {
	r.mu.RLock()
	t, ok := r.tools[name]
	limiter := r.rateLimiter
	scrub := r.scrubbing
	r.mu.RUnlock()

	if !ok {
		return ErrorResult("unknown tool: " + name)
	}

	if limiter != nil {
		if session := SessionFromContext(ctx); session != "" {
			if err := limiter.Allow(session); err != nil {
				return ErrorResult(err.Error())
			}
		}
	}

	args, err := ParseArguments(rawArgs)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid tool arguments: %v", err))
	}
	if err := ValidateArguments(t.Parameters(), args); err != nil {
		return ErrorResult(fmt.Sprintf("invalid tool arguments: %v", err))
	}

	start := time.Now()
	result := t.Execute(ctx, args)
	duration := time.Since(start)

	if result == nil {
		result = ErrorResult("tool returned no result")
	}
	if scrub {
		if result.ForLLM != "" {
			result.ForLLM = ScrubCredentials(result.ForLLM)
		}
		if result.ForUser != "" {
			result.ForUser = ScrubCredentials(result.ForUser)
		}
	}

	slog.Debug("tool executed",
		"tool", name,
		"duration_ms", duration.Milliseconds(),
		"is_error", result.IsError,
	)
	return result
}

// ProviderDefs returns tool definitions in registration order.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]providers.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, ToProviderDef(r.tools[name]))
	}
	return defs
}

// List returns all registered tool names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
