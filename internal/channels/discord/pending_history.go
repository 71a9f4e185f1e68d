package discord

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Group messages from non-owner users are not answered, but they are
// context: when the owner next speaks, the accumulated backlog is prepended
// so the agent knows what the room has been talking about.

const (
	maxHistoryKeys           = 1000
	DefaultGroupHistoryLimit = 50
)

// HistoryEntry is one tracked group message.
type HistoryEntry struct {
	Sender    string
	Body      string
	Timestamp time.Time
	MessageID string
}

// PendingHistory tracks unanswered group messages per channel.
type PendingHistory struct {
	mu      sync.Mutex
	entries map[string][]HistoryEntry
	order   []string // LRU order for key eviction
}

func NewPendingHistory() *PendingHistory {
	return &PendingHistory{entries: make(map[string][]HistoryEntry)}
}

// Record appends a message under key, trimming to limit. Disabled when
// limit <= 0.
func (ph *PendingHistory) Record(key string, entry HistoryEntry, limit int) {
	if limit <= 0 || key == "" {
		return
	}

	ph.mu.Lock()
	defer ph.mu.Unlock()

	list := append(ph.entries[key], entry)
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	ph.entries[key] = list

	ph.touchLocked(key)
	for len(ph.order) > maxHistoryKeys {
		oldest := ph.order[0]
		ph.order = ph.order[1:]
		delete(ph.entries, oldest)
	}
}

// BuildContext prepends any backlog for key to the current message.
func (ph *PendingHistory) BuildContext(key, currentMessage string, limit int) string {
	if limit <= 0 || key == "" {
		return currentMessage
	}

	ph.mu.Lock()
	entries := make([]HistoryEntry, len(ph.entries[key]))
	copy(entries, ph.entries[key])
	ph.mu.Unlock()

	if len(entries) == 0 {
		return currentMessage
	}

	var lines []string
	for _, e := range entries {
		ts := ""
		if !e.Timestamp.IsZero() {
			ts = fmt.Sprintf(" [%s]", e.Timestamp.Format("15:04"))
		}
		lines = append(lines, fmt.Sprintf("  %s%s: %s", e.Sender, ts, e.Body))
	}

	return fmt.Sprintf("[Chat messages since your last reply - for context]\n%s\n\n[Your current message]\n%s",
		strings.Join(lines, "\n"), currentMessage)
}

// Clear drops the backlog for key, called after the agent replies there.
func (ph *PendingHistory) Clear(key string) {
	if key == "" {
		return
	}
	ph.mu.Lock()
	defer ph.mu.Unlock()

	delete(ph.entries, key)
	for i, k := range ph.order {
		if k == key {
			ph.order = append(ph.order[:i], ph.order[i+1:]...)
			break
		}
	}
}

// touchLocked moves key to the back of the LRU order. Caller holds ph.mu.
func (ph *PendingHistory) touchLocked(key string) {
	for i, k := range ph.order {
		if k == key {
			ph.order = append(ph.order[:i], ph.order[i+1:]...)
			break
		}
	}
	ph.order = append(ph.order, key)
}
