package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/majordomo-ai/majordomo/internal/engine"
)

func TestLane_ConcurrencyLimit(t *testing.T) {
	lane := newLane(LaneConfig{Name: "test", MaxConcurrent: 2})

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 6; i++ {
		wg.Add(1)
		err := lane.Submit(context.Background(), func() {
			defer wg.Done()
			cur := active.Add(1)
			for {
				old := maxActive.Load()
				if cur <= old || maxActive.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			active.Add(-1)
		})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	wg.Wait()

	if m := maxActive.Load(); m > 2 {
		t.Errorf("max active = %d, want <= 2", m)
	}
	if m := maxActive.Load(); m < 2 {
		t.Errorf("max active = %d, want 2 (full concurrency unused)", m)
	}
}

func TestScheduler_SerializesPerSession(t *testing.T) {
	var active, maxActive atomic.Int32

	runFn := func(_ context.Context, req Request) (*engine.CycleResult, error) {
		cur := active.Add(1)
		for {
			old := maxActive.Load()
			if cur <= old || maxActive.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return &engine.CycleResult{Stop: engine.StopDone, FinalText: req.Message}, nil
	}

	s := New(nil, QueueConfig{Cap: 10}, runFn)

	var chans []<-chan Outcome
	for i := 0; i < 4; i++ {
		chans = append(chans, s.Schedule(context.Background(), "main", Request{
			Session: "same-session",
			Message: "msg",
		}))
	}
	for _, ch := range chans {
		out := <-ch
		if out.Err != nil {
			t.Fatalf("run: %v", out.Err)
		}
	}

	if m := maxActive.Load(); m != 1 {
		t.Errorf("max concurrent runs for one session = %d, want 1", m)
	}
}

func TestScheduler_SessionsRunInParallel(t *testing.T) {
	start := make(chan struct{})
	var active, maxActive atomic.Int32

	runFn := func(_ context.Context, req Request) (*engine.CycleResult, error) {
		<-start
		cur := active.Add(1)
		for {
			old := maxActive.Load()
			if cur <= old || maxActive.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		active.Add(-1)
		return &engine.CycleResult{Stop: engine.StopDone}, nil
	}

	s := New(nil, QueueConfig{Cap: 10}, runFn)
	a := s.Schedule(context.Background(), "main", Request{Session: "a", Message: "x"})
	b := s.Schedule(context.Background(), "main", Request{Session: "b", Message: "y"})

	time.Sleep(10 * time.Millisecond)
	close(start)
	<-a
	<-b

	if m := maxActive.Load(); m < 2 {
		t.Errorf("max active = %d, want 2 (sessions should not serialize against each other)", m)
	}
}

func TestScheduler_DropNewRejectsWhenFull(t *testing.T) {
	block := make(chan struct{})
	runFn := func(context.Context, Request) (*engine.CycleResult, error) {
		<-block
		return &engine.CycleResult{Stop: engine.StopDone}, nil
	}

	s := New(nil, QueueConfig{Cap: 1, Drop: DropNew}, runFn)
	ctx := context.Background()

	first := s.Schedule(ctx, "main", Request{Session: "s", Message: "running"})
	// Wait for the first to become active so the next occupies the queue.
	deadline := time.Now().Add(time.Second)
	for !s.Busy("s") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	queued := s.Schedule(ctx, "s", Request{Session: "s", Message: "queued"})
	_ = queued
	rejected := s.Schedule(ctx, "s", Request{Session: "s", Message: "rejected"})

	out := <-rejected
	if !errors.Is(out.Err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", out.Err)
	}

	close(block)
	if out := <-first; out.Err != nil {
		t.Fatalf("first: %v", out.Err)
	}
}

func TestScheduler_DropOldEvictsHead(t *testing.T) {
	block := make(chan struct{})
	runFn := func(_ context.Context, req Request) (*engine.CycleResult, error) {
		<-block
		return &engine.CycleResult{Stop: engine.StopDone, FinalText: req.Message}, nil
	}

	s := New(nil, QueueConfig{Cap: 1, Drop: DropOld}, runFn)
	ctx := context.Background()

	first := s.Schedule(ctx, "main", Request{Session: "s", Message: "running"})
	deadline := time.Now().Add(time.Second)
	for !s.Busy("s") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	oldQueued := s.Schedule(ctx, "s", Request{Session: "s", Message: "old"})
	newQueued := s.Schedule(ctx, "s", Request{Session: "s", Message: "new"})

	if out := <-oldQueued; !errors.Is(out.Err, ErrQueueDropped) {
		t.Fatalf("old err = %v, want ErrQueueDropped", out.Err)
	}

	close(block)
	<-first
	out := <-newQueued
	if out.Err != nil || out.Result.FinalText != "new" {
		t.Fatalf("new outcome = %+v", out)
	}
}

func TestScheduler_QueueDrainsAfterSubmitFailure(t *testing.T) {
	block := make(chan struct{})
	runFn := func(context.Context, Request) (*engine.CycleResult, error) {
		<-block
		return &engine.CycleResult{Stop: engine.StopDone}, nil
	}

	s := New([]LaneConfig{{Name: "main", MaxConcurrent: 1}}, QueueConfig{Cap: 10}, runFn)
	ctx, cancel := context.WithCancel(context.Background())

	first := s.Schedule(ctx, "main", Request{Session: "s", Message: "running"})
	deadline := time.Now().Add(time.Second)
	for !s.Busy("s") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	second := s.Schedule(ctx, "main", Request{Session: "s", Message: "queued-1"})
	third := s.Schedule(ctx, "main", Request{Session: "s", Message: "queued-2"})

	// Cancel so the lane refuses new submissions, then let the active run
	// finish and start draining the queue.
	cancel()
	close(block)

	if out := <-first; out.Err != nil {
		t.Fatalf("first: %v", out.Err)
	}

	// Every queued request must still reach a terminal outcome; a failed
	// lane submit must not strand the rest of the queue.
	for name, ch := range map[string]<-chan Outcome{"second": second, "third": third} {
		select {
		case out := <-ch:
			if out.Err == nil {
				t.Errorf("%s: want submit error after cancel, got success", name)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s stalled behind a failed lane submit", name)
		}
	}
}

func TestScheduler_DebounceCollapsesStart(t *testing.T) {
	var runs atomic.Int32
	runFn := func(context.Context, Request) (*engine.CycleResult, error) {
		runs.Add(1)
		return &engine.CycleResult{Stop: engine.StopDone}, nil
	}

	s := New(nil, QueueConfig{Cap: 10, DebounceMs: 40}, runFn)
	ch1 := s.Schedule(context.Background(), "main", Request{Session: "s", Message: "a"})

	// Within the debounce window nothing has started yet.
	time.Sleep(10 * time.Millisecond)
	if runs.Load() != 0 {
		t.Error("run started before debounce elapsed")
	}
	<-ch1
	if runs.Load() != 1 {
		t.Errorf("runs = %d", runs.Load())
	}
}
