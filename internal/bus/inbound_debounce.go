package bus

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// InboundDebouncer buffers rapid consecutive messages from the same sender
// and merges them into one InboundMessage before flushing. Several short
// messages typed in quick succession become a single agent run instead of
// a queue of them.
type InboundDebouncer struct {
	window  time.Duration
	flushFn func(InboundMessage)

	mu      sync.Mutex
	buffers map[string]*debounceBuffer
}

type debounceBuffer struct {
	messages []InboundMessage
	timer    *time.Timer
}

// NewInboundDebouncer creates a debouncer. A non-positive window disables
// buffering entirely.
func NewInboundDebouncer(window time.Duration, flushFn func(InboundMessage)) *InboundDebouncer {
	return &InboundDebouncer{
		window:  window,
		flushFn: flushFn,
		buffers: make(map[string]*debounceBuffer),
	}
}

// Push buffers msg and (re)arms the flush timer. Messages carrying media
// bypass the buffer: any pending text flushes first, then the media message
// goes straight through.
func (d *InboundDebouncer) Push(msg InboundMessage) {
	if d.window <= 0 {
		d.flushFn(msg)
		return
	}

	key := msg.Channel + ":" + msg.ChatID + ":" + msg.SenderID

	if len(msg.Media) > 0 {
		d.flushKey(key)
		d.flushFn(msg)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	buf, ok := d.buffers[key]
	if !ok {
		buf = &debounceBuffer{}
		d.buffers[key] = buf
	}
	buf.messages = append(buf.messages, msg)

	if buf.timer != nil {
		buf.timer.Stop()
	}
	buf.timer = time.AfterFunc(d.window, func() {
		d.flushKey(key)
	})

	slog.Debug("inbound debounce: buffered", "key", key, "count", len(buf.messages))
}

// Stop flushes every pending buffer. For shutdown.
func (d *InboundDebouncer) Stop() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.buffers))
	for k := range d.buffers {
		keys = append(keys, k)
	}
	d.mu.Unlock()

	for _, key := range keys {
		d.flushKey(key)
	}
}

func (d *InboundDebouncer) flushKey(key string) {
	d.mu.Lock()
	buf, ok := d.buffers[key]
	if !ok || len(buf.messages) == 0 {
		d.mu.Unlock()
		return
	}
	if buf.timer != nil {
		buf.timer.Stop()
	}
	msgs := buf.messages
	delete(d.buffers, key)
	d.mu.Unlock()

	merged := mergeMessages(msgs)
	if len(msgs) > 1 {
		slog.Info("inbound debounce: merged", "key", key, "count", len(msgs))
	}
	d.flushFn(merged)
}

// mergeMessages joins content with newlines and concatenates media; every
// other field comes from the last message.
func mergeMessages(msgs []InboundMessage) InboundMessage {
	if len(msgs) == 1 {
		return msgs[0]
	}

	last := msgs[len(msgs)-1]

	parts := make([]string, 0, len(msgs))
	var media []string
	for _, m := range msgs {
		if m.Content != "" {
			parts = append(parts, m.Content)
		}
		media = append(media, m.Media...)
	}
	last.Content = strings.Join(parts, "\n")
	last.Media = media
	return last
}
