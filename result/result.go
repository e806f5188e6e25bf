// Package result defines the result record a job writes its outcome into,
// and the store contract for it.
//
// Records are owned by the calling subsystem. The engine never creates or
// deletes them; handlers only update the fields their job type produces.
package result

import (
	"context"
	"time"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
)

// Status is the user-facing state of a record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is the downstream entity a job's outcome is written into.
type Record struct {
	nocode.Entity

	ID          string   `json:"id"`
	Prompt      string   `json:"prompt,omitempty"`
	Status      Status   `json:"status"`
	Result      string   `json:"result,omitempty"`
	TokensUsed  int      `json:"tokensUsed"`
	Valid       *bool    `json:"valid,omitempty"`
	Issues      []string `json:"issues,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
	Tests       string   `json:"tests,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// New returns a pending record with fresh timestamps.
func New(recordID, prompt string) *Record {
	return &Record{
		Entity: nocode.NewEntity(),
		ID:     recordID,
		Prompt: prompt,
		Status: StatusPending,
	}
}

// Store defines the persistence contract for result records.
type Store interface {
	// CreateRecord persists a new record. Duplicate IDs yield
	// nocode.ErrRecordAlreadyExists.
	CreateRecord(ctx context.Context, r *Record) error

	// GetRecord returns the record or nocode.ErrRecordNotFound.
	GetRecord(ctx context.Context, recordID string) (*Record, error)

	// UpdateRecord replaces the stored record. Missing records yield
	// nocode.ErrRecordNotFound.
	UpdateRecord(ctx context.Context, r *Record) error
}

// Update loads the record, applies fn and writes it back. Concurrent
// writers to the same record are not serialized.
func Update(ctx context.Context, s Store, recordID string, fn func(*Record)) error {
	r, err := s.GetRecord(ctx, recordID)
	if err != nil {
		return err
	}
	fn(r)
	r.UpdatedAt = time.Now().UTC()
	return s.UpdateRecord(ctx, r)
}
