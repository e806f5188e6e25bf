package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/id"
	"github.com/svetoslav0421/nocode-claude-ai/job"
	"github.com/svetoslav0421/nocode-claude-ai/result"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	bun.BaseModel `bun:"table:nocode_jobs,alias:j"`

	ID           string          `bun:"id,pk"`
	Type         string          `bun:"type,notnull"`
	Payload      json.RawMessage `bun:"payload,type:jsonb,notnull"`
	Status       string          `bun:"status,notnull,default:'pending'"`
	Priority     int             `bun:"priority,notnull,default:0"`
	Attempts     int             `bun:"attempts,notnull,default:0"`
	MaxAttempts  int             `bun:"max_attempts,notnull,default:3"`
	ScheduledFor time.Time       `bun:"scheduled_for,notnull,default:current_timestamp"`
	StartedAt    *time.Time      `bun:"started_at"`
	CompletedAt  *time.Time      `bun:"completed_at"`
	HeartbeatAt  *time.Time      `bun:"heartbeat_at"`
	Error        string          `bun:"error,notnull,default:''"`
	WorkerID     string          `bun:"worker_id,notnull,default:''"`
	Timeout      int64           `bun:"timeout,notnull,default:0"`
	CreatedAt    time.Time       `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt    time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

func toJobModel(j *job.Job) *jobModel {
	payload := j.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	scheduledFor := j.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = time.Now().UTC()
	}
	return &jobModel{
		ID:           j.ID.String(),
		Type:         string(j.Type),
		Payload:      payload,
		Status:       string(j.Status),
		Priority:     j.Priority,
		Attempts:     j.Attempts,
		MaxAttempts:  j.MaxAttempts,
		ScheduledFor: scheduledFor,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		HeartbeatAt:  j.HeartbeatAt,
		Error:        j.Error,
		WorkerID:     j.WorkerID.String(),
		Timeout:      j.Timeout.Nanoseconds(),
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("nocode/bun: parse job id %q: %w", m.ID, err)
	}

	j := &job.Job{
		Entity: nocode.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           parsedID,
		Type:         job.Type(m.Type),
		Payload:      m.Payload,
		Status:       job.Status(m.Status),
		Priority:     m.Priority,
		Attempts:     m.Attempts,
		MaxAttempts:  m.MaxAttempts,
		ScheduledFor: m.ScheduledFor,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
		HeartbeatAt:  m.HeartbeatAt,
		Error:        m.Error,
		Timeout:      time.Duration(m.Timeout),
	}
	if m.WorkerID != "" {
		if wID, wErr := id.ParseWorkerID(m.WorkerID); wErr == nil {
			j.WorkerID = wID
		}
	}
	return j, nil
}

func fromJobModels(models []jobModel) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// ── Result model ──────────────────────────────────────────────────

type recordModel struct {
	bun.BaseModel `bun:"table:nocode_results,alias:r"`

	ID          string    `bun:"id,pk"`
	Prompt      string    `bun:"prompt,notnull,default:''"`
	Status      string    `bun:"status,notnull,default:'pending'"`
	Result      string    `bun:"result,notnull,default:''"`
	TokensUsed  int       `bun:"tokens_used,notnull,default:0"`
	Valid       *bool     `bun:"valid"`
	Issues      []string  `bun:"issues,array,notnull,default:'{}'"`
	Explanation string    `bun:"explanation,notnull,default:''"`
	Tests       string    `bun:"tests,notnull,default:''"`
	Error       string    `bun:"error,notnull,default:''"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toRecordModel(r *result.Record) *recordModel {
	issues := r.Issues
	if issues == nil {
		issues = []string{}
	}
	return &recordModel{
		ID:          r.ID,
		Prompt:      r.Prompt,
		Status:      string(r.Status),
		Result:      r.Result,
		TokensUsed:  r.TokensUsed,
		Valid:       r.Valid,
		Issues:      issues,
		Explanation: r.Explanation,
		Tests:       r.Tests,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func fromRecordModel(m *recordModel) *result.Record {
	return &result.Record{
		Entity: nocode.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          m.ID,
		Prompt:      m.Prompt,
		Status:      result.Status(m.Status),
		Result:      m.Result,
		TokensUsed:  m.TokensUsed,
		Valid:       m.Valid,
		Issues:      m.Issues,
		Explanation: m.Explanation,
		Tests:       m.Tests,
		Error:       m.Error,
	}
}
