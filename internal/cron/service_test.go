package cron

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testService(t *testing.T, onJob JobHandler) *Service {
	t.Helper()
	s := NewService(filepath.Join(t.TempDir(), "cron.json"), onJob)
	s.SetRetryConfig(RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	return s
}

func TestAdd_ValidatesSchedule(t *testing.T) {
	s := testService(t, nil)

	cases := []Schedule{
		{Kind: "bogus"},
		{Kind: "at"},                            // missing at_ms
		{Kind: "every"},                         // missing every_ms
		{Kind: "cron"},                          // missing expr
		{Kind: "cron", Expr: "not a cron expr"}, // invalid expr
	}
	for _, sched := range cases {
		if _, err := s.Add("bad", sched, Payload{Session: "s", Message: "m"}); err == nil {
			t.Errorf("schedule %+v accepted, want error", sched)
		}
	}
}

func TestAdd_RequiresSessionAndMessage(t *testing.T) {
	s := testService(t, nil)
	every := int64(60000)

	if _, err := s.Add("j", Schedule{Kind: "every", EveryMS: &every}, Payload{Message: "m"}); err == nil {
		t.Error("missing session accepted")
	}
	if _, err := s.Add("j", Schedule{Kind: "every", EveryMS: &every}, Payload{Session: "s"}); err == nil {
		t.Error("missing message accepted")
	}
}

func TestAdd_ComputesNextRunAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron.json")
	s := NewService(path, nil)

	every := int64(60000)
	job, err := s.Add("digest", Schedule{Kind: "every", EveryMS: &every}, Payload{Session: "cron:digest", Message: "summarize"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if job.State.NextRunAtMS == nil {
		t.Fatal("next run not computed")
	}
	if got := *job.State.NextRunAtMS - nowMS(); got < 55000 || got > 65000 {
		t.Errorf("next run offset = %dms, want ~60000", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("store not written: %v", err)
	}
	if !strings.Contains(string(data), "cron:digest") {
		t.Error("persisted store missing job payload")
	}
}

func TestAdd_OneShotMarkedDeleteAfterRun(t *testing.T) {
	s := testService(t, nil)
	at := nowMS() + 3600_000
	job, err := s.Add("once", Schedule{Kind: "at", AtMS: &at}, Payload{Session: "s", Message: "m"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !job.DeleteAfterRun {
		t.Error("one-shot job should be delete-after-run")
	}
}

func TestRun_ForceExecutesAndReschedules(t *testing.T) {
	var fired []string
	s := testService(t, func(job *Job) (string, error) {
		fired = append(fired, job.Payload.Message)
		return "done: " + job.Payload.Message, nil
	})

	every := int64(60000)
	job, _ := s.Add("j", Schedule{Kind: "every", EveryMS: &every}, Payload{Session: "s", Message: "hello"})

	ran, result, err := s.Run(job.ID, true)
	if err != nil || !ran {
		t.Fatalf("run: ran=%v err=%v", ran, err)
	}
	if result != "done: hello" {
		t.Errorf("result = %q", result)
	}
	if len(fired) != 1 {
		t.Fatalf("handler fired %d times", len(fired))
	}

	got, ok := s.Get(job.ID)
	if !ok {
		t.Fatal("job gone after run")
	}
	if got.State.LastStatus != "ok" || got.State.NextRunAtMS == nil {
		t.Errorf("state = %+v, want ok with next run", got.State)
	}
}

func TestRun_NotDueWithoutForce(t *testing.T) {
	s := testService(t, func(*Job) (string, error) { return "", nil })

	every := int64(3600_000)
	job, _ := s.Add("j", Schedule{Kind: "every", EveryMS: &every}, Payload{Session: "s", Message: "m"})

	ran, reason, err := s.Run(job.ID, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if ran || reason != "not-due" {
		t.Errorf("ran=%v reason=%q, want not-due skip", ran, reason)
	}
}

func TestRun_OneShotRemovedAfterExecution(t *testing.T) {
	s := testService(t, func(*Job) (string, error) { return "ok", nil })

	at := nowMS() + 3600_000
	job, _ := s.Add("once", Schedule{Kind: "at", AtMS: &at}, Payload{Session: "s", Message: "m"})

	if _, _, err := s.Run(job.ID, true); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := s.Get(job.ID); ok {
		t.Error("one-shot job still present after run")
	}
}

func TestRun_FailureRecordedInStateAndLog(t *testing.T) {
	s := testService(t, func(*Job) (string, error) {
		return "", fmt.Errorf("upstream down")
	})

	every := int64(60000)
	job, _ := s.Add("j", Schedule{Kind: "every", EveryMS: &every}, Payload{Session: "s", Message: "m"})

	ran, _, err := s.Run(job.ID, true)
	if !ran || err == nil {
		t.Fatalf("ran=%v err=%v, want executed failure", ran, err)
	}

	got, _ := s.Get(job.ID)
	if got.State.LastStatus != "error" || got.State.LastError != "upstream down" {
		t.Errorf("state = %+v", got.State)
	}

	log := s.RunLog(job.ID, 10)
	if len(log) != 1 || log[0].Status != "error" || log[0].Error != "upstream down" {
		t.Errorf("run log = %+v", log)
	}
}

func TestEnable_DisableClearsNextRun(t *testing.T) {
	s := testService(t, nil)
	every := int64(60000)
	job, _ := s.Add("j", Schedule{Kind: "every", EveryMS: &every}, Payload{Session: "s", Message: "m"})

	if err := s.Enable(job.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	got, _ := s.Get(job.ID)
	if got.Enabled || got.State.NextRunAtMS != nil {
		t.Errorf("disabled job = %+v", got)
	}

	if err := s.Enable(job.ID, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	got, _ = s.Get(job.ID)
	if !got.Enabled || got.State.NextRunAtMS == nil {
		t.Errorf("re-enabled job = %+v", got)
	}
}

func TestUpdate_PatchesFields(t *testing.T) {
	s := testService(t, nil)
	every := int64(60000)
	job, _ := s.Add("j", Schedule{Kind: "every", EveryMS: &every}, Payload{Session: "s", Message: "m"})

	deliver := true
	channel := "discord"
	got, err := s.Update(job.ID, JobPatch{
		Name:    "renamed",
		Message: "new message",
		Deliver: &deliver,
		Channel: &channel,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Name != "renamed" || got.Payload.Message != "new message" {
		t.Errorf("patched job = %+v", got)
	}
	if !got.Payload.Deliver || got.Payload.Channel != "discord" {
		t.Errorf("delivery fields = %+v", got.Payload)
	}
}

func TestList_FiltersDisabled(t *testing.T) {
	s := testService(t, nil)
	every := int64(60000)
	a, _ := s.Add("a", Schedule{Kind: "every", EveryMS: &every}, Payload{Session: "s", Message: "m"})
	s.Add("b", Schedule{Kind: "every", EveryMS: &every}, Payload{Session: "s", Message: "m"})
	s.Enable(a.ID, false)

	if got := len(s.List(false)); got != 1 {
		t.Errorf("enabled list = %d, want 1", got)
	}
	if got := len(s.List(true)); got != 2 {
		t.Errorf("full list = %d, want 2", got)
	}
}

func TestStart_ReloadsPersistedJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron.json")
	s1 := NewService(path, nil)
	every := int64(60000)
	if _, err := s1.Add("persisted", Schedule{Kind: "every", EveryMS: &every}, Payload{Session: "s", Message: "m"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	s2 := NewService(path, nil)
	if err := s2.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s2.Stop()

	jobs := s2.List(true)
	if len(jobs) != 1 || jobs[0].Name != "persisted" {
		t.Fatalf("reloaded jobs = %+v", jobs)
	}
	if jobs[0].State.NextRunAtMS == nil {
		t.Error("next run not recomputed on start")
	}
}

func TestLoop_FiresDueJob(t *testing.T) {
	done := make(chan string, 1)
	s := testService(t, func(job *Job) (string, error) {
		select {
		case done <- job.Name:
		default:
		}
		return "ok", nil
	})

	// Due immediately: every-schedule with next run forced into the past.
	every := int64(50)
	job, _ := s.Add("ticker", Schedule{Kind: "every", EveryMS: &every}, Payload{Session: "s", Message: "m"})
	_ = job

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	select {
	case name := <-done:
		if name != "ticker" {
			t.Errorf("fired job = %q", name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}
}

func TestCronExpressionNextRun(t *testing.T) {
	sched := Schedule{Kind: "cron", Expr: "*/5 * * * *"}
	next := nextRun(&sched, nowMS())
	if next == nil {
		t.Fatal("no next run for valid expression")
	}
	if *next <= nowMS() {
		t.Error("next run not in the future")
	}
	if *next-nowMS() > 5*60*1000+1000 {
		t.Errorf("next run too far out: %dms", *next-nowMS())
	}
}
