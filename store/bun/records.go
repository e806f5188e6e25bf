package bunstore

import (
	"context"
	"fmt"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/result"
)

// CreateRecord persists a new result record.
func (s *Store) CreateRecord(ctx context.Context, r *result.Record) error {
	_, err := s.db.NewInsert().Model(toRecordModel(r)).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return nocode.ErrRecordAlreadyExists
		}
		return fmt.Errorf("nocode/bun: create record: %w", err)
	}
	return nil
}

// GetRecord returns a record by ID.
func (s *Store) GetRecord(ctx context.Context, recordID string) (*result.Record, error) {
	m := new(recordModel)
	err := s.db.NewSelect().Model(m).Where("id = ?", recordID).Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nocode.ErrRecordNotFound
		}
		return nil, fmt.Errorf("nocode/bun: get record: %w", err)
	}
	return fromRecordModel(m), nil
}

// UpdateRecord replaces a stored record.
func (s *Store) UpdateRecord(ctx context.Context, r *result.Record) error {
	res, err := s.db.NewUpdate().Model(toRecordModel(r)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("nocode/bun: update record: %w", err)
	}
	if affected(res) == 0 {
		return nocode.ErrRecordNotFound
	}
	return nil
}
