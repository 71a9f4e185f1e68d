package cron

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// Service owns the persisted job set and the ticking loop that fires due
// jobs through the configured handler.
type Service struct {
	path     string
	onJob    JobHandler
	retryCfg RetryConfig

	mu      sync.Mutex
	file    jobFile
	running bool
	stop    chan struct{}
	runLog  []RunLogEntry // last 200 executions
}

// NewService creates a service persisting to path. The handler may be nil
// at construction and set later via SetOnJob.
func NewService(path string, onJob JobHandler) *Service {
	return &Service{
		path:     path,
		file:     jobFile{Version: 1},
		onJob:    onJob,
		retryCfg: DefaultRetryConfig(),
	}
}

// SetOnJob sets the execution callback.
func (s *Service) SetOnJob(h JobHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJob = h
}

// SetRetryConfig overrides the default retry policy.
func (s *Service) SetRetryConfig(cfg RetryConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryCfg = cfg
}

// Start loads persisted jobs, computes missing next-run times, and begins
// the tick loop.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if err := s.loadLocked(); err != nil {
		slog.Warn("cron: store unreadable, starting empty", "path", s.path, "error", err)
		s.file = jobFile{Version: 1}
	}

	now := nowMS()
	for i := range s.file.Jobs {
		job := &s.file.Jobs[i]
		if job.Enabled && job.State.NextRunAtMS == nil {
			job.State.NextRunAtMS = nextRun(&job.Schedule, now)
		}
	}
	s.saveLocked()

	s.stop = make(chan struct{})
	s.running = true
	go s.loop(s.stop)

	slog.Info("cron service started", "jobs", len(s.file.Jobs))
	return nil
}

// Stop halts the tick loop. Jobs already firing finish on their own.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stop)
	s.running = false
	slog.Info("cron service stopped")
}

// Add validates and registers a job. One-shot "at" jobs are removed after
// they run.
func (s *Service) Add(name string, schedule Schedule, payload Payload) (*Job, error) {
	if err := validateSchedule(&schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	if payload.Session == "" {
		return nil, fmt.Errorf("payload requires a session")
	}
	if payload.Message == "" {
		return nil, fmt.Errorf("payload requires a message")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMS()
	job := Job{
		ID:             generateID(),
		Name:           name,
		Enabled:        true,
		Schedule:       schedule,
		Payload:        payload,
		CreatedAtMS:    now,
		UpdatedAtMS:    now,
		DeleteAfterRun: schedule.Kind == "at",
	}
	job.State.NextRunAtMS = nextRun(&job.Schedule, now)

	s.file.Jobs = append(s.file.Jobs, job)
	s.saveLocked()

	slog.Info("cron job added", "id", job.ID, "name", name, "kind", schedule.Kind)
	return &job, nil
}

// Remove deletes a job by ID.
func (s *Service) Remove(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, job := range s.file.Jobs {
		if job.ID == jobID {
			s.file.Jobs = append(s.file.Jobs[:i], s.file.Jobs[i+1:]...)
			s.saveLocked()
			slog.Info("cron job removed", "id", jobID)
			return nil
		}
	}
	return fmt.Errorf("job %s not found", jobID)
}

// Enable toggles a job. Disabling clears the pending next-run time.
func (s *Service) Enable(jobID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.file.Jobs {
		job := &s.file.Jobs[i]
		if job.ID != jobID {
			continue
		}
		job.Enabled = enabled
		job.UpdatedAtMS = nowMS()
		if enabled {
			job.State.NextRunAtMS = nextRun(&job.Schedule, nowMS())
		} else {
			job.State.NextRunAtMS = nil
		}
		s.saveLocked()
		slog.Info("cron job toggled", "id", jobID, "enabled", enabled)
		return nil
	}
	return fmt.Errorf("job %s not found", jobID)
}

// Update applies a partial patch and recomputes scheduling state.
func (s *Service) Update(jobID string, patch JobPatch) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.file.Jobs {
		job := &s.file.Jobs[i]
		if job.ID != jobID {
			continue
		}

		if patch.Name != "" {
			job.Name = patch.Name
		}
		if patch.Enabled != nil {
			job.Enabled = *patch.Enabled
		}
		if patch.Schedule != nil {
			if err := validateSchedule(patch.Schedule); err != nil {
				return nil, fmt.Errorf("invalid schedule: %w", err)
			}
			job.Schedule = *patch.Schedule
		}
		if patch.Message != "" {
			job.Payload.Message = patch.Message
		}
		if patch.Deliver != nil {
			job.Payload.Deliver = *patch.Deliver
		}
		if patch.Channel != nil {
			job.Payload.Channel = *patch.Channel
		}
		if patch.To != nil {
			job.Payload.To = *patch.To
		}
		if patch.DeleteAfterRun != nil {
			job.DeleteAfterRun = *patch.DeleteAfterRun
		}
		job.UpdatedAtMS = nowMS()

		if job.Enabled {
			job.State.NextRunAtMS = nextRun(&job.Schedule, nowMS())
		} else {
			job.State.NextRunAtMS = nil
		}

		s.saveLocked()
		slog.Info("cron job updated", "id", jobID)
		out := *job
		return &out, nil
	}
	return nil, fmt.Errorf("job %s not found", jobID)
}

// List returns jobs, optionally including disabled ones.
func (s *Service) List(includeDisabled bool) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Job
	for _, job := range s.file.Jobs {
		if includeDisabled || job.Enabled {
			out = append(out, job)
		}
	}
	return out
}

// Get returns a copy of a job by ID.
func (s *Service) Get(jobID string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.file.Jobs {
		if s.file.Jobs[i].ID == jobID {
			out := s.file.Jobs[i]
			return &out, true
		}
	}
	return nil, false
}

// Run triggers a job immediately. When force is false the job only runs if
// its next-run time has passed; the "not-due" reason is returned otherwise.
func (s *Service) Run(jobID string, force bool) (bool, string, error) {
	s.mu.Lock()
	var job *Job
	for i := range s.file.Jobs {
		if s.file.Jobs[i].ID == jobID {
			j := s.file.Jobs[i]
			job = &j
			break
		}
	}
	handler := s.onJob
	retryCfg := s.retryCfg
	s.mu.Unlock()

	if job == nil {
		return false, "", fmt.Errorf("job %s not found", jobID)
	}
	if handler == nil {
		return false, "", fmt.Errorf("no job handler configured")
	}
	if !force && (job.State.NextRunAtMS == nil || *job.State.NextRunAtMS > nowMS()) {
		return false, "not-due", nil
	}

	slog.Info("cron manual run", "id", job.ID, "name", job.Name, "force", force)
	result, _, err := ExecuteWithRetry(func() (string, error) {
		return handler(job)
	}, retryCfg)

	s.finishRun(jobID, result, err)
	if err != nil {
		return true, "", err
	}
	return true, result, nil
}

// RunLog returns recent executions, newest first. Empty jobID matches all.
func (s *Service) RunLog(jobID string, limit int) []RunLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	var out []RunLogEntry
	for i := len(s.runLog) - 1; i >= 0 && len(out) < limit; i-- {
		if jobID == "" || s.runLog[i].JobID == jobID {
			out = append(out, s.runLog[i])
		}
	}
	return out
}

// Status reports the service state for diagnostics endpoints.
func (s *Service) Status() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest *int64
	for _, job := range s.file.Jobs {
		if job.Enabled && job.State.NextRunAtMS != nil {
			if earliest == nil || *job.State.NextRunAtMS < *earliest {
				earliest = job.State.NextRunAtMS
			}
		}
	}
	return map[string]any{
		"enabled":         s.running,
		"jobs":            len(s.file.Jobs),
		"next_wake_at_ms": earliest,
	}
}

func (s *Service) loop(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.fireDue()
		}
	}
}

func (s *Service) fireDue() {
	s.mu.Lock()
	now := nowMS()
	var due []string
	for i := range s.file.Jobs {
		job := &s.file.Jobs[i]
		if job.Enabled && job.State.NextRunAtMS != nil && *job.State.NextRunAtMS <= now {
			due = append(due, job.ID)
			// Clear so a slow handler cannot double-fire on the next tick.
			job.State.NextRunAtMS = nil
		}
	}
	if len(due) > 0 {
		s.saveLocked()
	}
	s.mu.Unlock()

	for _, id := range due {
		s.execute(id)
	}
}

func (s *Service) execute(jobID string) {
	s.mu.Lock()
	var job *Job
	for i := range s.file.Jobs {
		if s.file.Jobs[i].ID == jobID {
			j := s.file.Jobs[i]
			job = &j
			break
		}
	}
	handler := s.onJob
	retryCfg := s.retryCfg
	s.mu.Unlock()

	if job == nil || handler == nil {
		return
	}

	slog.Info("cron firing job", "id", job.ID, "name", job.Name, "session", job.Payload.Session)
	result, attempts, err := ExecuteWithRetry(func() (string, error) {
		return handler(job)
	}, retryCfg)
	if attempts > 1 {
		slog.Info("cron job retried", "id", job.ID, "attempts", attempts, "success", err == nil)
	}

	s.finishRun(jobID, result, err)
}

// finishRun updates job state after an execution, removes one-shot jobs,
// and appends to the run log.
func (s *Service) finishRun(jobID, result string, err error) {
	s.mu.Lock()
	for i := range s.file.Jobs {
		job := &s.file.Jobs[i]
		if job.ID != jobID {
			continue
		}

		now := nowMS()
		job.State.LastRunAtMS = &now
		if err != nil {
			job.State.LastStatus = "error"
			job.State.LastError = err.Error()
			slog.Error("cron job failed", "id", jobID, "error", err)
		} else {
			job.State.LastStatus = "ok"
			job.State.LastError = ""
		}

		if job.DeleteAfterRun {
			s.file.Jobs = append(s.file.Jobs[:i], s.file.Jobs[i+1:]...)
		} else {
			job.State.NextRunAtMS = nextRun(&job.Schedule, now)
			if job.State.NextRunAtMS == nil {
				job.Enabled = false
			}
		}
		break
	}
	s.saveLocked()

	entry := RunLogEntry{Ts: nowMS(), JobID: jobID}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	} else {
		entry.Status = "ok"
		entry.Summary = TruncateOutput(result)
	}
	s.runLog = append(s.runLog, entry)
	if len(s.runLog) > 200 {
		s.runLog = s.runLog[len(s.runLog)-200:]
	}
	s.mu.Unlock()
}

func nextRun(schedule *Schedule, now int64) *int64 {
	switch schedule.Kind {
	case "at":
		if schedule.AtMS != nil && *schedule.AtMS > now {
			return schedule.AtMS
		}
		return nil
	case "every":
		if schedule.EveryMS == nil || *schedule.EveryMS <= 0 {
			return nil
		}
		next := now + *schedule.EveryMS
		return &next
	case "cron":
		if schedule.Expr == "" {
			return nil
		}
		nextTime, err := gronx.NextTickAfter(schedule.Expr, time.UnixMilli(now), false)
		if err != nil {
			slog.Error("cron: next run computation failed", "expr", schedule.Expr, "error", err)
			return nil
		}
		ms := nextTime.UnixMilli()
		return &ms
	default:
		return nil
	}
}

func validateSchedule(schedule *Schedule) error {
	switch schedule.Kind {
	case "at":
		if schedule.AtMS == nil {
			return fmt.Errorf("at schedule requires at_ms")
		}
	case "every":
		if schedule.EveryMS == nil || *schedule.EveryMS <= 0 {
			return fmt.Errorf("every schedule requires positive every_ms")
		}
	case "cron":
		if schedule.Expr == "" {
			return fmt.Errorf("cron schedule requires expr")
		}
		if !gronx.New().IsValid(schedule.Expr) {
			return fmt.Errorf("invalid cron expression: %s", schedule.Expr)
		}
	default:
		return fmt.Errorf("unknown schedule kind: %q", schedule.Kind)
	}
	return nil
}

func (s *Service) loadLocked() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &s.file)
}

func (s *Service) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
