package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// LaneConfig bounds how many runs a lane executes at once. Lanes separate
// interactive traffic from background work so a burst of cron jobs cannot
// starve a user typing.
type LaneConfig struct {
	Name          string `json:"name"`
	MaxConcurrent int64  `json:"max_concurrent"`
}

// DefaultLanes returns the standard two-lane split.
func DefaultLanes() []LaneConfig {
	return []LaneConfig{
		{Name: "main", MaxConcurrent: 4},
		{Name: "cron", MaxConcurrent: 2},
	}
}

// Lane executes submitted functions with bounded concurrency.
type Lane struct {
	name string
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
}

func newLane(cfg LaneConfig) *Lane {
	max := cfg.MaxConcurrent
	if max <= 0 {
		max = 1
	}
	return &Lane{name: cfg.Name, sem: semaphore.NewWeighted(max)}
}

// Submit blocks until a slot is free (or ctx ends), then runs fn on its own
// goroutine.
func (l *Lane) Submit(ctx context.Context, fn func()) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.sem.Release(1)
		fn()
	}()
	return nil
}

// Wait blocks until all in-flight work finishes.
func (l *Lane) Wait() { l.wg.Wait() }

// LaneManager holds the named lanes.
type LaneManager struct {
	lanes map[string]*Lane
}

func NewLaneManager(configs []LaneConfig) *LaneManager {
	m := &LaneManager{lanes: make(map[string]*Lane, len(configs))}
	for _, cfg := range configs {
		m.lanes[cfg.Name] = newLane(cfg)
	}
	return m
}

// Get returns a lane by name, or nil.
func (m *LaneManager) Get(name string) *Lane { return m.lanes[name] }

// Wait blocks until every lane drains.
func (m *LaneManager) Wait() {
	for _, l := range m.lanes {
		l.Wait()
	}
}
