package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/result"
)

// CreateRecord persists a new result record. The "id" field doubles as
// the existence guard.
func (s *Store) CreateRecord(ctx context.Context, r *result.Record) error {
	key := recordKey(r.ID)
	created, err := s.client.HSetNX(ctx, key, "id", r.ID).Result()
	if err != nil {
		return fmt.Errorf("nocode/redis: create record: %w", err)
	}
	if !created {
		return nocode.ErrRecordAlreadyExists
	}
	if err := s.client.HSet(ctx, key, recordToMap(r)).Err(); err != nil {
		return fmt.Errorf("nocode/redis: create record: %w", err)
	}
	return nil
}

// GetRecord returns a record by ID.
func (s *Store) GetRecord(ctx context.Context, recordID string) (*result.Record, error) {
	vals, err := s.client.HGetAll(ctx, recordKey(recordID)).Result()
	if err != nil {
		return nil, fmt.Errorf("nocode/redis: get record: %w", err)
	}
	if len(vals) == 0 {
		return nil, nocode.ErrRecordNotFound
	}
	return mapToRecord(vals), nil
}

// UpdateRecord replaces a stored record.
func (s *Store) UpdateRecord(ctx context.Context, r *result.Record) error {
	key := recordKey(r.ID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("nocode/redis: update record exists: %w", err)
	}
	if exists == 0 {
		return nocode.ErrRecordNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, recordToMap(r))
	if r.Valid == nil {
		pipe.HDel(ctx, key, "valid")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("nocode/redis: update record: %w", err)
	}
	return nil
}

func recordToMap(r *result.Record) map[string]any {
	m := map[string]any{
		"id":          r.ID,
		"prompt":      r.Prompt,
		"status":      string(r.Status),
		"result":      r.Result,
		"tokens_used": strconv.Itoa(r.TokensUsed),
		"issues":      marshalJSON(r.Issues),
		"explanation": r.Explanation,
		"tests":       r.Tests,
		"error":       r.Error,
		"created_at":  formatTime(r.CreatedAt),
		"updated_at":  formatTime(r.UpdatedAt),
	}
	if r.Valid != nil {
		m["valid"] = strconv.FormatBool(*r.Valid)
	}
	return m
}

func mapToRecord(m map[string]string) *result.Record {
	tokens, _ := strconv.Atoi(m["tokens_used"]) //nolint:errcheck // best-effort parse from trusted Redis data
	r := &result.Record{
		Entity: nocode.Entity{
			CreatedAt: parseTime(m["created_at"]),
			UpdatedAt: parseTime(m["updated_at"]),
		},
		ID:          m["id"],
		Prompt:      m["prompt"],
		Status:      result.Status(m["status"]),
		Result:      m["result"],
		TokensUsed:  tokens,
		Issues:      unmarshalStrings(m["issues"]),
		Explanation: m["explanation"],
		Tests:       m["tests"],
		Error:       m["error"],
	}
	if v, err := strconv.ParseBool(m["valid"]); err == nil {
		r.Valid = &v
	}
	return r
}

// marshalJSON is a helper to marshal to JSON string.
func marshalJSON(v any) string {
	b, _ := json.Marshal(v) //nolint:errcheck // marshal should not fail for basic types
	return string(b)
}

// unmarshalStrings parses a JSON array of strings.
func unmarshalStrings(s string) []string {
	if s == "" || s == "null" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out) //nolint:errcheck // best-effort parse from trusted Redis data
	return out
}
