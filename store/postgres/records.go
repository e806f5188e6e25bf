package postgres

import (
	"context"
	"fmt"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/result"
)

const recordColumns = `
	id, prompt, status, result, tokens_used, valid, issues,
	explanation, tests, error, created_at, updated_at`

// CreateRecord persists a new result record.
func (s *Store) CreateRecord(ctx context.Context, r *result.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO nocode_results (`+recordColumns+`
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.Prompt, string(r.Status), r.Result, r.TokensUsed, r.Valid, nonNil(r.Issues),
		r.Explanation, r.Tests, r.Error, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return nocode.ErrRecordAlreadyExists
		}
		return fmt.Errorf("nocode/postgres: create record: %w", err)
	}
	return nil
}

// GetRecord returns a record by ID.
func (s *Store) GetRecord(ctx context.Context, recordID string) (*result.Record, error) {
	var (
		r      result.Record
		status string
	)
	err := s.pool.QueryRow(ctx, `SELECT`+recordColumns+` FROM nocode_results WHERE id = $1`, recordID).Scan(
		&r.ID, &r.Prompt, &status, &r.Result, &r.TokensUsed, &r.Valid, &r.Issues,
		&r.Explanation, &r.Tests, &r.Error, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nocode.ErrRecordNotFound
		}
		return nil, fmt.Errorf("nocode/postgres: get record: %w", err)
	}
	r.Status = result.Status(status)
	return &r, nil
}

// UpdateRecord replaces a stored record.
func (s *Store) UpdateRecord(ctx context.Context, r *result.Record) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE nocode_results SET
			prompt = $2, status = $3, result = $4, tokens_used = $5, valid = $6,
			issues = $7, explanation = $8, tests = $9, error = $10, updated_at = $11
		WHERE id = $1`,
		r.ID, r.Prompt, string(r.Status), r.Result, r.TokensUsed, r.Valid,
		nonNil(r.Issues), r.Explanation, r.Tests, r.Error, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("nocode/postgres: update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nocode.ErrRecordNotFound
	}
	return nil
}
