package bus

import (
	"sync"
	"time"
)

// DedupeCache rejects inbound messages already seen within the TTL window.
// Channels can redeliver on reconnect; the cache keeps one agent run per
// distinct message. Expired entries are pruned lazily.
type DedupeCache struct {
	mu      sync.Mutex
	seen    map[string]int64 // key → unix millis
	ttl     time.Duration
	maxSize int
}

func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	return &DedupeCache{
		seen:    make(map[string]int64, 256),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// IsDuplicate reports whether key was seen within the TTL window, and
// records it when it was not.
func (d *DedupeCache) IsDuplicate(key string) bool {
	now := time.Now().UnixMilli()
	cutoff := now - d.ttl.Milliseconds()

	d.mu.Lock()
	defer d.mu.Unlock()

	if ts, ok := d.seen[key]; ok && ts >= cutoff {
		return true
	}

	d.prune(cutoff)
	d.seen[key] = now
	return false
}

// prune drops expired entries, then evicts arbitrarily if still over
// maxSize. Caller holds d.mu.
func (d *DedupeCache) prune(cutoff int64) {
	for k, ts := range d.seen {
		if ts < cutoff {
			delete(d.seen, k)
		}
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		excess := len(d.seen) - d.maxSize + 1
		for k := range d.seen {
			if excess <= 0 {
				break
			}
			delete(d.seen, k)
			excess--
		}
	}
}
