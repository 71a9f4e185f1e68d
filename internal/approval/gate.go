// Package approval bridges a pending sensitive tool call to an external
// human decision. Each request is a future keyed by (session, tool call ID);
// a gateway method, Discord reaction, or CLI prompt resolves it. Requests
// for different sessions never block each other.
package approval

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Outcome of an approval request.
type Outcome string

const (
	OutcomeApproved  Outcome = "approved"
	OutcomeDenied    Outcome = "denied"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
)

// Approved reports whether the tool handler may run.
// Timeout and cancellation count as denial for execution but are recorded
// distinctly for audit.
func (o Outcome) Approved() bool { return o == OutcomeApproved }

// ErrUnknownApproval is returned when resolving an ID that is not pending.
var ErrUnknownApproval = errors.New("approval: no pending request with that id")

// Decision is the resolution of one approval request, produced exactly once.
type Decision struct {
	ID        string    `json:"id"` // tool call ID
	Session   string    `json:"session"`
	Outcome   Outcome   `json:"outcome"`
	DecidedBy string    `json:"decided_by,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// Pending describes an unresolved request.
type Pending struct {
	ID        string    `json:"id"`
	Session   string    `json:"session"`
	Tool      string    `json:"tool"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// RequestListener is notified when a new approval request appears, so
// presentation layers can surface it (gateway event, Discord DM, CLI prompt).
type RequestListener func(p Pending)

type pendingEntry struct {
	info Pending
	ch   chan Decision // buffered(1); receives exactly one decision
}

// pendingKey identifies one request. Providers with deterministic call IDs
// reuse the same ID across conversations, so the session is part of the key:
// a request in one session must never clobber another session's future.
type pendingKey struct {
	session string
	callID  string
}

const maxAuditEntries = 500

// Gate tracks pending approval requests and their decisions.
type Gate struct {
	mu        sync.Mutex
	pending   map[pendingKey]*pendingEntry
	listeners []RequestListener
	timeout   time.Duration
	audit     []Decision
}

// NewGate creates a gate with the given approval timeout.
func NewGate(timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Gate{
		pending: make(map[pendingKey]*pendingEntry),
		timeout: timeout,
	}
}

// OnRequest registers a listener for new approval requests.
func (g *Gate) OnRequest(fn RequestListener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Request registers a pending approval and blocks the calling tool path until
// an external actor resolves it, the timeout fires, or ctx is cancelled.
// Only the requesting goroutine blocks; other sessions proceed untouched.
func (g *Gate) Request(ctx context.Context, session, callID, tool, prompt string) Decision {
	entry := &pendingEntry{
		info: Pending{
			ID:        callID,
			Session:   session,
			Tool:      tool,
			Prompt:    prompt,
			CreatedAt: time.Now(),
		},
		ch: make(chan Decision, 1),
	}

	g.mu.Lock()
	g.pending[pendingKey{session: session, callID: callID}] = entry
	listeners := make([]RequestListener, len(g.listeners))
	copy(listeners, g.listeners)
	g.mu.Unlock()

	slog.Info("approval requested", "id", callID, "session", session, "tool", tool)
	for _, fn := range listeners {
		fn(entry.info)
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case d := <-entry.ch:
		return d
	case <-timer.C:
		return g.finalize(entry, OutcomeTimeout)
	case <-ctx.Done():
		return g.finalize(entry, OutcomeCancelled)
	}
}

// Resolve posts a decision for a pending request. External actors know only
// the call ID; when several sessions hold the same ID, the oldest request is
// resolved. Exactly one resolution per request wins; an ID with nothing
// pending returns ErrUnknownApproval.
func (g *Gate) Resolve(callID string, outcome Outcome, decidedBy string) error {
	g.mu.Lock()
	var (
		key   pendingKey
		entry *pendingEntry
	)
	for k, e := range g.pending {
		if k.callID != callID {
			continue
		}
		if entry == nil || e.info.CreatedAt.Before(entry.info.CreatedAt) {
			key, entry = k, e
		}
	}
	if entry == nil {
		g.mu.Unlock()
		return ErrUnknownApproval
	}
	delete(g.pending, key)
	d := Decision{
		ID:        callID,
		Session:   entry.info.Session,
		Outcome:   outcome,
		DecidedBy: decidedBy,
		DecidedAt: time.Now(),
	}
	g.recordLocked(d)
	// Buffer before releasing the lock: once the entry is gone from the map,
	// the waiter must be able to collect the decision without blocking.
	entry.ch <- d
	g.mu.Unlock()

	slog.Info("approval resolved", "id", callID, "session", d.Session, "outcome", outcome, "by", decidedBy)
	return nil
}

// finalize resolves a request from the waiter's own side (timeout/cancel).
// If an external Resolve won the race, its decision is already buffered in
// the channel and wins.
func (g *Gate) finalize(entry *pendingEntry, outcome Outcome) Decision {
	key := pendingKey{session: entry.info.Session, callID: entry.info.ID}

	g.mu.Lock()
	if _, ok := g.pending[key]; !ok {
		// Resolve removed the entry, so its decision is in the channel.
		// Never block here: a waiter must always terminate.
		select {
		case d := <-entry.ch:
			g.mu.Unlock()
			return d
		default:
		}
	}
	delete(g.pending, key)
	d := Decision{
		ID:        entry.info.ID,
		Session:   entry.info.Session,
		Outcome:   outcome,
		DecidedAt: time.Now(),
	}
	g.recordLocked(d)
	g.mu.Unlock()

	slog.Info("approval closed", "id", d.ID, "session", d.Session, "outcome", outcome)
	return d
}

func (g *Gate) recordLocked(d Decision) {
	g.audit = append(g.audit, d)
	if len(g.audit) > maxAuditEntries {
		g.audit = g.audit[len(g.audit)-maxAuditEntries:]
	}
}

// ListPending returns all unresolved requests, oldest first.
func (g *Gate) ListPending() []Pending {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Pending, 0, len(g.pending))
	for _, e := range g.pending {
		out = append(out, e.info)
	}
	sortPending(out)
	return out
}

// Audit returns up to limit most recent decisions, newest last.
func (g *Gate) Audit(limit int) []Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	if limit <= 0 || limit > len(g.audit) {
		limit = len(g.audit)
	}
	out := make([]Decision, limit)
	copy(out, g.audit[len(g.audit)-limit:])
	return out
}

func sortPending(items []Pending) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].CreatedAt.Before(items[j-1].CreatedAt); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
