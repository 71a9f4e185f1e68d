package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBus_InboundRoundTrip(t *testing.T) {
	mb := New()
	mb.PublishInbound(InboundMessage{Channel: "discord", Content: "hi"})

	msg, ok := mb.ConsumeInbound(context.Background())
	if !ok || msg.Content != "hi" {
		t.Fatalf("got (%+v, %v)", msg, ok)
	}
}

func TestBus_ConsumeRespectsContext(t *testing.T) {
	mb := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Error("consume returned a message from an empty bus")
	}
}

func TestBus_BroadcastReachesAllSubscribers(t *testing.T) {
	mb := New()
	var mu sync.Mutex
	got := map[string]int{}

	for _, id := range []string{"a", "b"} {
		id := id
		mb.Subscribe(id, func(Event) {
			mu.Lock()
			got[id]++
			mu.Unlock()
		})
	}
	mb.Broadcast(Event{Type: "chat.delta"})

	mu.Lock()
	defer mu.Unlock()
	if got["a"] != 1 || got["b"] != 1 {
		t.Errorf("deliveries = %v", got)
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	mb := New()
	var count int
	mb.Subscribe("x", func(Event) { count++ })
	mb.Unsubscribe("x")
	mb.Broadcast(Event{Type: "anything"})

	if count != 0 {
		t.Errorf("delivered %d events after unsubscribe", count)
	}
}

func TestBus_HandlerLookup(t *testing.T) {
	mb := New()
	mb.RegisterHandler("discord", func(context.Context, OutboundMessage) error { return nil })

	if _, ok := mb.Handler("discord"); !ok {
		t.Error("registered handler not found")
	}
	if _, ok := mb.Handler("missing"); ok {
		t.Error("lookup of unknown channel succeeded")
	}
}

func TestDedupe_RejectsWithinTTL(t *testing.T) {
	d := NewDedupeCache(time.Minute, 100)

	if d.IsDuplicate("msg-1") {
		t.Error("first sighting flagged as duplicate")
	}
	if !d.IsDuplicate("msg-1") {
		t.Error("second sighting not flagged")
	}
	if d.IsDuplicate("msg-2") {
		t.Error("distinct key flagged")
	}
}

func TestDedupe_ExpiresAfterTTL(t *testing.T) {
	d := NewDedupeCache(20*time.Millisecond, 100)
	d.IsDuplicate("k")
	time.Sleep(30 * time.Millisecond)

	if d.IsDuplicate("k") {
		t.Error("expired key still flagged")
	}
}

func TestDedupe_EvictsOverMaxSize(t *testing.T) {
	d := NewDedupeCache(time.Hour, 3)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		d.IsDuplicate(k)
	}

	d.mu.Lock()
	n := len(d.seen)
	d.mu.Unlock()
	if n > 3 {
		t.Errorf("cache holds %d entries, max 3", n)
	}
}

func TestDebouncer_MergesBurst(t *testing.T) {
	flushed := make(chan InboundMessage, 1)
	d := NewInboundDebouncer(30*time.Millisecond, func(m InboundMessage) {
		flushed <- m
	})

	base := InboundMessage{Channel: "discord", ChatID: "c", SenderID: "u"}
	for _, text := range []string{"hey", "can you", "check the logs?"} {
		m := base
		m.Content = text
		d.Push(m)
	}

	select {
	case m := <-flushed:
		if m.Content != "hey\ncan you\ncheck the logs?" {
			t.Errorf("merged content = %q", m.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("no flush")
	}
}

func TestDebouncer_DisabledPassesThrough(t *testing.T) {
	var got []string
	d := NewInboundDebouncer(0, func(m InboundMessage) {
		got = append(got, m.Content)
	})

	d.Push(InboundMessage{Content: "a"})
	d.Push(InboundMessage{Content: "b"})

	if len(got) != 2 {
		t.Errorf("flushes = %v, want immediate passthrough", got)
	}
}

func TestDebouncer_MediaBypassesAndFlushesPendingText(t *testing.T) {
	var mu sync.Mutex
	var got []InboundMessage
	d := NewInboundDebouncer(time.Minute, func(m InboundMessage) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})

	base := InboundMessage{Channel: "discord", ChatID: "c", SenderID: "u"}
	text := base
	text.Content = "look at this"
	d.Push(text)

	pic := base
	pic.Media = []string{"/tmp/img.png"}
	d.Push(pic)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("flushes = %d, want buffered text then media", len(got))
	}
	if got[0].Content != "look at this" || len(got[1].Media) != 1 {
		t.Errorf("flush order wrong: %+v", got)
	}
}

func TestDebouncer_StopFlushesPending(t *testing.T) {
	flushed := make(chan InboundMessage, 1)
	d := NewInboundDebouncer(time.Hour, func(m InboundMessage) {
		flushed <- m
	})

	d.Push(InboundMessage{Channel: "c", ChatID: "1", SenderID: "u", Content: "pending"})
	d.Stop()

	select {
	case m := <-flushed:
		if m.Content != "pending" {
			t.Errorf("flushed %q", m.Content)
		}
	default:
		t.Fatal("Stop did not flush")
	}
}
