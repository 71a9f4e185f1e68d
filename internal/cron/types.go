// Package cron schedules recurring and one-shot agent runs. Jobs persist
// as JSON and fire through a handler that the host wires to the run
// scheduler's background lane.
package cron

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Schedule describes when a job fires. Exactly one of the kind-specific
// fields is meaningful:
//
//	at    — a single run at AtMS (epoch millis)
//	every — fixed interval of EveryMS milliseconds
//	cron  — a standard 5-field cron expression in Expr
type Schedule struct {
	Kind    string `json:"kind"`
	AtMS    *int64 `json:"at_ms,omitempty"`
	EveryMS *int64 `json:"every_ms,omitempty"`
	Expr    string `json:"expr,omitempty"`
	TZ      string `json:"tz,omitempty"`
}

// Payload is what a firing job does: inject Message into Session's
// conversation and run the agent. When Deliver is set the final answer is
// pushed out on Channel to To instead of only being logged.
type Payload struct {
	Session string `json:"session"`
	Message string `json:"message"`
	Deliver bool   `json:"deliver,omitempty"`
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
}

// JobState is the mutable execution state kept alongside the job.
type JobState struct {
	NextRunAtMS *int64 `json:"next_run_at_ms,omitempty"`
	LastRunAtMS *int64 `json:"last_run_at_ms,omitempty"`
	LastStatus  string `json:"last_status,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

// Job is one persisted schedule entry.
type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAtMS    int64    `json:"created_at_ms"`
	UpdatedAtMS    int64    `json:"updated_at_ms"`
	DeleteAfterRun bool     `json:"delete_after_run,omitempty"`
}

// jobFile is the on-disk shape.
type jobFile struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// JobPatch carries partial updates; nil/empty fields are left untouched.
type JobPatch struct {
	Name           string
	Enabled        *bool
	Schedule       *Schedule
	Message        string
	Deliver        *bool
	Channel        *string
	To             *string
	DeleteAfterRun *bool
}

// RunLogEntry records one execution for the in-memory run history.
type RunLogEntry struct {
	Ts      int64  `json:"ts"`
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JobHandler executes a fired job and returns a short result summary.
type JobHandler func(job *Job) (string, error)

func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func nowMS() int64 { return time.Now().UnixMilli() }
