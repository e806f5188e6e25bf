package job

import (
	"encoding/json"
	"fmt"
	"time"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/id"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job waits for its ScheduledFor time and a claim.
	StatusPending Status = "pending"
	// StatusProcessing means a worker has claimed the job and is running it.
	StatusProcessing Status = "processing"
	// StatusCompleted means the handler succeeded.
	StatusCompleted Status = "completed"
	// StatusFailed means the job failed permanently or ran out of attempts.
	StatusFailed Status = "failed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Type is the kind of work a job carries. The set is closed.
type Type string

const (
	TypeGeneration  Type = "generation"
	TypeImprovement Type = "improvement"
	TypeValidation  Type = "validation"
	TypeExplanation Type = "explanation"
	TypeTests       Type = "tests"
)

// Types lists every accepted job type.
var Types = []Type{TypeGeneration, TypeImprovement, TypeValidation, TypeExplanation, TypeTests}

// Valid reports whether t belongs to the closed set of job types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// ParseType converts s into a Type, rejecting anything outside the closed set.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", nocode.ErrUnknownJobType, s)
	}
	return t, nil
}

// Job is a persisted unit of asynchronous work.
type Job struct {
	nocode.Entity

	ID           id.JobID        `json:"id"`
	Type         Type            `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Status       Status          `json:"status"`
	Priority     int             `json:"priority"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	HeartbeatAt  *time.Time      `json:"heartbeat_at,omitempty"`
	Error        string          `json:"error,omitempty"`
	WorkerID     id.WorkerID     `json:"worker_id,omitempty"`
	Timeout      time.Duration   `json:"timeout,omitempty"`
}

// Eligible reports whether the job may be claimed at now.
func (j *Job) Eligible(now time.Time) bool {
	return j.Status == StatusPending && !j.ScheduledFor.After(now)
}

// Terminal reports whether the job reached completed or failed.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// HasAttemptsLeft reports whether one more failed attempt still leaves
// room for a retry.
func (j *Job) HasAttemptsLeft() bool {
	return j.Attempts+1 < j.MaxAttempts
}

// ClaimedBefore returns the timestamp the visibility sweep compares
// against: the last heartbeat, or the claim time when none was sent.
func (j *Job) ClaimedBefore() time.Time {
	switch {
	case j.HeartbeatAt != nil:
		return *j.HeartbeatAt
	case j.StartedAt != nil:
		return *j.StartedAt
	default:
		return j.UpdatedAt
	}
}
