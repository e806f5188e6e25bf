package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/svetoslav0421/nocode-claude-ai/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		parse  func(string) (id.ID, error)
		prefix string
	}{
		{"JobID", id.NewJobID, id.ParseJobID, "job_"},
		{"WorkerID", id.NewWorkerID, id.ParseWorkerID, "wkr_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			if !strings.HasPrefix(original.String(), tt.prefix) {
				t.Fatalf("expected prefix %q, got %q", tt.prefix, original.String())
			}
			parsed, err := tt.parse(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestParseWithPrefix_RejectsOtherPrefix(t *testing.T) {
	w := id.NewWorkerID()
	if _, err := id.ParseJobID(w.String()); err == nil {
		t.Fatal("expected error parsing worker id as job id")
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "not-a-typeid"} {
		if _, err := id.Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error", in)
		}
	}
}

func TestNil(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Fatal("zero value should be nil")
	}
	if i.String() != "" {
		t.Errorf("String() = %q, want empty", i.String())
	}
	v, err := i.Value()
	if err != nil || v != nil {
		t.Errorf("Value() = %v, %v; want nil, nil", v, err)
	}
}

func TestScan(t *testing.T) {
	original := id.NewJobID()

	var fromString id.ID
	if err := fromString.Scan(original.String()); err != nil {
		t.Fatalf("Scan(string): %v", err)
	}
	if fromString.String() != original.String() {
		t.Errorf("got %q, want %q", fromString.String(), original.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil || !fromNil.IsNil() {
		t.Errorf("Scan(nil) = %v, nil=%v", err, fromNil.IsNil())
	}

	var bad id.ID
	if err := bad.Scan(42); err == nil {
		t.Error("Scan(int): expected error")
	}
}

func TestJSON(t *testing.T) {
	type wrapper struct {
		ID id.ID `json:"id"`
	}
	in := wrapper{ID: id.NewJobID()}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out wrapper
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID.String() != in.ID.String() {
		t.Errorf("got %q, want %q", out.ID.String(), in.ID.String())
	}
}
