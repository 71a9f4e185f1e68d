// Package scheduler serializes agent runs per session and bounds global run
// concurrency through lanes. A conversation's log is append-only and owned
// by one run at a time; the per-session queue is what makes that true under
// concurrent invocations.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/majordomo-ai/majordomo/internal/engine"
)

// Request is one agent invocation: deliver Message into Session's
// conversation and run cycles until done.
type Request struct {
	Session string
	Message string
	Sink    engine.StreamSink
}

// Outcome is delivered on the channel returned by Schedule.
type Outcome struct {
	Result *engine.CycleResult
	Err    error
}

// RunFunc executes one agent run. The scheduler calls it when the request's
// turn comes.
type RunFunc func(ctx context.Context, req Request) (*engine.CycleResult, error)

// DropPolicy selects the victim when a session queue is full.
type DropPolicy string

const (
	DropOld DropPolicy = "old" // evict the oldest queued request
	DropNew DropPolicy = "new" // reject the incoming request
)

// QueueConfig configures per-session queuing.
type QueueConfig struct {
	Cap        int        `json:"cap"`
	Drop       DropPolicy `json:"drop"`
	DebounceMs int        `json:"debounce_ms"`
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{Cap: 10, Drop: DropOld}
}

type pendingRequest struct {
	req Request
	ch  chan Outcome
}

// sessionQueue runs at most one request at a time for its session key,
// FIFO-queuing the rest.
type sessionQueue struct {
	key   string
	lane  string
	cfg   QueueConfig
	runFn RunFunc
	lanes *LaneManager

	mu        sync.Mutex
	queue     []*pendingRequest
	active    bool
	timer     *time.Timer
	parentCtx context.Context
}

func newSessionQueue(key, lane string, cfg QueueConfig, lanes *LaneManager, runFn RunFunc) *sessionQueue {
	return &sessionQueue{key: key, lane: lane, cfg: cfg, lanes: lanes, runFn: runFn}
}

// enqueue adds a request; when idle, the queue starts draining after the
// debounce window. The returned channel receives exactly one Outcome.
func (sq *sessionQueue) enqueue(ctx context.Context, req Request) <-chan Outcome {
	pending := &pendingRequest{req: req, ch: make(chan Outcome, 1)}

	sq.mu.Lock()
	defer sq.mu.Unlock()

	if sq.parentCtx == nil {
		sq.parentCtx = ctx
	}

	if sq.cfg.Cap > 0 && len(sq.queue) >= sq.cfg.Cap {
		sq.applyDropPolicy(pending)
	} else {
		sq.queue = append(sq.queue, pending)
	}

	if !sq.active {
		sq.scheduleNext(ctx)
	}
	return pending.ch
}

// scheduleNext arms the debounce timer, or starts immediately without one.
// Caller holds sq.mu.
func (sq *sessionQueue) scheduleNext(ctx context.Context) {
	if len(sq.queue) == 0 {
		return
	}
	debounce := time.Duration(sq.cfg.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		sq.startNext(ctx)
		return
	}
	if sq.timer != nil {
		sq.timer.Stop()
	}
	sq.timer = time.AfterFunc(debounce, func() {
		sq.mu.Lock()
		defer sq.mu.Unlock()
		if !sq.active && len(sq.queue) > 0 {
			sq.startNext(ctx)
		}
	})
}

// startNext pops the head and submits it to the lane. Caller holds sq.mu.
func (sq *sessionQueue) startNext(ctx context.Context) {
	pending := sq.queue[0]
	sq.queue = sq.queue[1:]
	sq.active = true

	lane := sq.lanes.Get(sq.lane)
	if lane == nil {
		lane = sq.lanes.Get("main")
	}
	if lane == nil {
		go sq.executeRun(ctx, pending)
		return
	}
	if err := lane.Submit(ctx, func() { sq.executeRun(ctx, pending) }); err != nil {
		pending.ch <- Outcome{Err: err}
		close(pending.ch)
		sq.active = false
		// Queued requests behind the failed one must still drain; without
		// this they stall until the next enqueue.
		sq.scheduleNext(ctx)
	}
}

func (sq *sessionQueue) executeRun(ctx context.Context, pending *pendingRequest) {
	result, err := sq.runFn(ctx, pending.req)
	pending.ch <- Outcome{Result: result, Err: err}
	close(pending.ch)

	sq.mu.Lock()
	sq.active = false
	if len(sq.queue) > 0 {
		sq.scheduleNext(sq.parentCtx)
	}
	sq.mu.Unlock()
}

// applyDropPolicy resolves a full queue. Caller holds sq.mu.
func (sq *sessionQueue) applyDropPolicy(incoming *pendingRequest) {
	switch sq.cfg.Drop {
	case DropNew:
		incoming.ch <- Outcome{Err: ErrQueueFull}
		close(incoming.ch)
	default:
		old := sq.queue[0]
		old.ch <- Outcome{Err: ErrQueueDropped}
		close(old.ch)
		sq.queue = append(sq.queue[1:], incoming)
	}
}

func (sq *sessionQueue) isActive() bool {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return sq.active
}

func (sq *sessionQueue) queueLen() int {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return len(sq.queue)
}

// Scheduler routes requests to per-session queues and lanes.
type Scheduler struct {
	lanes    *LaneManager
	cfg      QueueConfig
	runFn    RunFunc
	mu       sync.RWMutex
	sessions map[string]*sessionQueue
}

func New(laneConfigs []LaneConfig, cfg QueueConfig, runFn RunFunc) *Scheduler {
	if laneConfigs == nil {
		laneConfigs = DefaultLanes()
	}
	return &Scheduler{
		lanes:    NewLaneManager(laneConfigs),
		cfg:      cfg,
		runFn:    runFn,
		sessions: make(map[string]*sessionQueue),
	}
}

// Schedule submits a request. The returned channel receives exactly one
// Outcome when the run finishes (or is dropped).
func (s *Scheduler) Schedule(ctx context.Context, lane string, req Request) <-chan Outcome {
	return s.session(req.Session, lane).enqueue(ctx, req)
}

// Busy reports whether the session currently has an active run.
func (s *Scheduler) Busy(session string) bool {
	s.mu.RLock()
	sq, ok := s.sessions[session]
	s.mu.RUnlock()
	return ok && sq.isActive()
}

// Backlog returns the number of queued (not yet started) requests.
func (s *Scheduler) Backlog(session string) int {
	s.mu.RLock()
	sq, ok := s.sessions[session]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return sq.queueLen()
}

// Wait blocks until every lane drains. For shutdown.
func (s *Scheduler) Wait() { s.lanes.Wait() }

func (s *Scheduler) session(key, lane string) *sessionQueue {
	s.mu.RLock()
	sq, ok := s.sessions[key]
	s.mu.RUnlock()
	if ok {
		return sq
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sq, ok := s.sessions[key]; ok {
		return sq
	}
	sq = newSessionQueue(key, lane, s.cfg, s.lanes, s.runFn)
	s.sessions[key] = sq
	slog.Debug("session queue created", "session", key, "lane", lane)
	return sq
}
