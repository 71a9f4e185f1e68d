// Package heartbeat wakes the agent at regular intervals so it can check on
// things (calendar, inbox, alerts) and surface anything that needs attention.
// The check prompt tells the agent to reply HEARTBEAT_OK when all is quiet;
// that ack is dropped silently, anything else is delivered as an alert.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/majordomo-ai/majordomo/internal/bus"
	"github.com/majordomo-ai/majordomo/internal/scheduler"
)

const defaultPrompt = "Read HEARTBEAT.md if it exists. Follow it strictly. " +
	"Do not infer or repeat old tasks from prior chats. " +
	"If nothing needs attention, reply HEARTBEAT_OK."

const (
	defaultInterval    = 30 * time.Minute
	defaultAckMaxChars = 300
	okToken            = "HEARTBEAT_OK"
	dedupeWindow       = 24 * time.Hour
)

// Config controls the heartbeat loop.
type Config struct {
	Interval    time.Duration
	Session     string // conversation session for heartbeat runs
	PromptFile  string // HEARTBEAT.md location; empty file disables ticks
	Prompt      string
	AckMaxChars int
	ActiveStart string // "HH:MM", empty = always active
	ActiveEnd   string
	Timezone    string
	Channel     string // delivery channel for alerts
	To          string // delivery chat ID
}

// Service runs the periodic heartbeat. Runs go through the scheduler's cron
// lane so they never starve interactive chat.
type Service struct {
	cfg   Config
	sched *scheduler.Scheduler
	bus   *bus.MessageBus

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	lastContent string
	lastAlertAt time.Time
}

func NewService(cfg Config, sched *scheduler.Scheduler, msgBus *bus.MessageBus) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Prompt == "" {
		cfg.Prompt = defaultPrompt
	}
	if cfg.AckMaxChars <= 0 {
		cfg.AckMaxChars = defaultAckMaxChars
	}
	if cfg.Session == "" {
		cfg.Session = "heartbeat"
	}
	return &Service{cfg: cfg, sched: sched, bus: msgBus}
}

// Start begins the loop in a background goroutine.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	go s.loop(ctx)
	slog.Info("heartbeat started", "interval", s.cfg.Interval, "session", s.cfg.Session)
}

// Stop halts the loop.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
	slog.Info("heartbeat stopped")
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) loop(ctx context.Context) {
	// Wait one full interval before the first tick; firing immediately on
	// startup would alert on stale state.
	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if !inActiveHours(s.cfg.ActiveStart, s.cfg.ActiveEnd, s.cfg.Timezone, time.Now()) {
		slog.Debug("heartbeat skipped: outside active hours")
		return
	}
	if s.promptFileEmpty() {
		slog.Debug("heartbeat skipped: checklist empty", "path", s.cfg.PromptFile)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	outcome := <-s.sched.Schedule(runCtx, "cron", scheduler.Request{
		Session: s.cfg.Session,
		Message: s.cfg.Prompt,
	})
	if outcome.Err != nil {
		slog.Warn("heartbeat run failed", "error", outcome.Err)
		return
	}

	content, isOK := stripOKToken(outcome.Result.FinalText, s.cfg.AckMaxChars)
	if isOK {
		slog.Debug("heartbeat ok")
		return
	}

	s.mu.Lock()
	if content == s.lastContent && time.Since(s.lastAlertAt) < dedupeWindow {
		s.mu.Unlock()
		slog.Debug("heartbeat alert suppressed: duplicate within window")
		return
	}
	s.lastContent = content
	s.lastAlertAt = time.Now()
	s.mu.Unlock()

	s.deliver(content)
}

func (s *Service) deliver(content string) {
	if s.cfg.Channel == "" || s.cfg.To == "" {
		slog.Info("heartbeat alert (no delivery target)", "preview", preview(content, 100))
		return
	}

	slog.Info("heartbeat alert delivered",
		"channel", s.cfg.Channel, "to", s.cfg.To, "preview", preview(content, 100))

	s.bus.PublishOutbound(bus.OutboundMessage{
		Channel: s.cfg.Channel,
		ChatID:  s.cfg.To,
		Content: content,
	})
}

// promptFileEmpty reports whether the heartbeat checklist has no meaningful
// content. A missing file counts as empty: the loop only runs when the user
// has written instructions for it.
func (s *Service) promptFileEmpty() bool {
	if s.cfg.PromptFile == "" {
		return true
	}
	data, err := os.ReadFile(s.cfg.PromptFile)
	if err != nil {
		return true
	}
	return effectivelyEmpty(string(data))
}

// effectivelyEmpty returns true when content holds only whitespace, bare
// markdown headers, empty list items, or comments.
func effectivelyEmpty(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if strings.TrimLeft(line, "# ") == "" {
				continue
			}
			return false
		}
		if strings.HasPrefix(line, "<!--") {
			continue
		}
		if (strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ")) && strings.TrimSpace(line[2:]) == "" {
			continue
		}
		return false
	}
	return true
}

// stripOKToken checks the reply for the quiet ack. The token at the start or
// end with at most ackMaxChars of trailing chatter still counts as an ack;
// a token buried mid-reply does not.
func stripOKToken(reply string, ackMaxChars int) (string, bool) {
	trimmed := strings.TrimSpace(reply)
	if trimmed == okToken {
		return "", true
	}

	// Models like to wrap the token in emphasis.
	stripped := trimmed
	for _, wrap := range [][2]string{{"**", "**"}, {"`", "`"}, {"<b>", "</b>"}, {"<strong>", "</strong>"}} {
		stripped = strings.TrimPrefix(stripped, wrap[0])
		stripped = strings.TrimSuffix(stripped, wrap[1])
	}
	if strings.TrimSpace(stripped) == okToken {
		return "", true
	}

	hasPrefix := strings.HasPrefix(trimmed, okToken)
	hasSuffix := strings.HasSuffix(trimmed, okToken)
	if !hasPrefix && !hasSuffix {
		return trimmed, false
	}

	remaining := trimmed
	if hasPrefix {
		remaining = strings.TrimSpace(strings.TrimPrefix(remaining, okToken))
	}
	if hasSuffix {
		remaining = strings.TrimSpace(strings.TrimSuffix(remaining, okToken))
	}
	if len(remaining) <= ackMaxChars {
		return "", true
	}
	return remaining, false
}

// inActiveHours checks whether now falls inside the [start, end) window.
// A window crossing midnight (22:00-06:00) wraps.
func inActiveHours(start, end, tz string, now time.Time) bool {
	if start == "" || end == "" {
		return true
	}
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			now = now.In(loc)
		}
	}

	startH, startM := parseHHMM(start)
	endH, endM := parseHHMM(end)

	currentMin := now.Hour()*60 + now.Minute()
	startMin := startH*60 + startM
	endMin := endH*60 + endM

	if startMin <= endMin {
		return currentMin >= startMin && currentMin < endMin
	}
	return currentMin >= startMin || currentMin < endMin
}

func parseHHMM(s string) (int, int) {
	var h, m int
	fmt.Sscanf(s, "%d:%d", &h, &m)
	return h, m
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
