package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	nocode "github.com/svetoslav0421/nocode-claude-ai"
	"github.com/svetoslav0421/nocode-claude-ai/generation"
	"github.com/svetoslav0421/nocode-claude-ai/job"
	"github.com/svetoslav0421/nocode-claude-ai/result"
)

// GenerationPayload is the payload of a generation job.
type GenerationPayload struct {
	ResultID string `json:"resultId"`
	Prompt   string `json:"prompt"`
}

// ImprovementPayload is the payload of an improvement job.
type ImprovementPayload struct {
	TargetID string `json:"targetId"`
	Code     string `json:"code"`
	Feedback string `json:"feedback"`
}

// CodePayload is the payload of validation, explanation and tests jobs.
type CodePayload struct {
	TargetID string `json:"targetId"`
	Code     string `json:"code"`
}

// Generator is the subset of *generation.Client the handlers call.
type Generator interface {
	GenerateComponent(ctx context.Context, prompt string) (*generation.Component, error)
	ImproveCode(ctx context.Context, code, feedback string) (string, error)
	ExplainCode(ctx context.Context, code string) (string, error)
	GenerateTests(ctx context.Context, code string) (string, error)
	ValidateComponent(ctx context.Context, code string) (*generation.Validation, error)
}

// Handlers holds the collaborators shared by every job definition.
type Handlers struct {
	gen     Generator
	records result.Store
	logger  *slog.Logger
}

// New creates Handlers.
func New(gen Generator, records result.Store, logger *slog.Logger) *Handlers {
	return &Handlers{gen: gen, records: records, logger: logger}
}

// RegisterAll registers a definition for every job type. opts apply to
// every definition.
func RegisterAll(reg *job.Registry, h *Handlers, opts ...job.Option) {
	job.RegisterDefinition(reg, job.NewDefinition(job.TypeGeneration, h.Generate, opts...).
		WithFailureHook(h.generationFailed))
	job.RegisterDefinition(reg, job.NewDefinition(job.TypeImprovement, h.Improve, opts...).
		WithFailureHook(h.improvementFailed))
	job.RegisterDefinition(reg, job.NewDefinition(job.TypeValidation, h.Validate, opts...).
		WithFailureHook(h.codeFailed))
	job.RegisterDefinition(reg, job.NewDefinition(job.TypeExplanation, h.Explain, opts...).
		WithFailureHook(h.codeFailed))
	job.RegisterDefinition(reg, job.NewDefinition(job.TypeTests, h.Tests, opts...).
		WithFailureHook(h.codeFailed))
}

// Generate produces a component for p.Prompt and completes the result
// record.
func (h *Handlers) Generate(ctx context.Context, p GenerationPayload) error {
	if err := required("resultId", p.ResultID); err != nil {
		return err
	}
	comp, err := h.gen.GenerateComponent(ctx, p.Prompt)
	if err != nil {
		return err
	}
	return h.update(ctx, p.ResultID, func(r *result.Record) {
		r.Status = result.StatusCompleted
		r.Result = comp.Code
		r.TokensUsed = comp.TokensUsed
		r.Error = ""
	})
}

// Improve replaces the target's code with the improved version.
func (h *Handlers) Improve(ctx context.Context, p ImprovementPayload) error {
	if err := required("targetId", p.TargetID); err != nil {
		return err
	}
	code, err := h.gen.ImproveCode(ctx, p.Code, p.Feedback)
	if err != nil {
		return err
	}
	return h.update(ctx, p.TargetID, func(r *result.Record) {
		r.Status = result.StatusCompleted
		r.Result = code
		r.Valid, r.Issues = nil, nil
		r.Error = ""
	})
}

// Validate stores the verdict alongside the validated code.
func (h *Handlers) Validate(ctx context.Context, p CodePayload) error {
	if err := required("targetId", p.TargetID); err != nil {
		return err
	}
	v, err := h.gen.ValidateComponent(ctx, p.Code)
	if err != nil {
		return err
	}
	return h.update(ctx, p.TargetID, func(r *result.Record) {
		valid := v.Valid
		r.Result = p.Code
		r.Valid = &valid
		r.Issues = v.Issues
	})
}

// Explain stores an explanation of the target's code.
func (h *Handlers) Explain(ctx context.Context, p CodePayload) error {
	if err := required("targetId", p.TargetID); err != nil {
		return err
	}
	text, err := h.gen.ExplainCode(ctx, p.Code)
	if err != nil {
		return err
	}
	return h.update(ctx, p.TargetID, func(r *result.Record) { r.Explanation = text })
}

// Tests stores generated tests for the target's code.
func (h *Handlers) Tests(ctx context.Context, p CodePayload) error {
	if err := required("targetId", p.TargetID); err != nil {
		return err
	}
	text, err := h.gen.GenerateTests(ctx, p.Code)
	if err != nil {
		return err
	}
	return h.update(ctx, p.TargetID, func(r *result.Record) { r.Tests = text })
}

func (h *Handlers) generationFailed(ctx context.Context, p GenerationPayload, cause error) error {
	return h.markFailed(ctx, p.ResultID, cause, true)
}

func (h *Handlers) improvementFailed(ctx context.Context, p ImprovementPayload, cause error) error {
	return h.markFailed(ctx, p.TargetID, cause, false)
}

func (h *Handlers) codeFailed(ctx context.Context, p CodePayload, cause error) error {
	return h.markFailed(ctx, p.TargetID, cause, false)
}

// markFailed records cause on the record. Only a generation owns the
// record's status; the other types leave it as it was.
func (h *Handlers) markFailed(ctx context.Context, recordID string, cause error, ownsStatus bool) error {
	if recordID == "" {
		return nil
	}
	err := result.Update(ctx, h.records, recordID, func(r *result.Record) {
		if ownsStatus {
			r.Status = result.StatusFailed
		}
		r.Error = cause.Error()
	})
	if errors.Is(err, nocode.ErrRecordNotFound) {
		h.logger.Warn("failed job has no result record", slog.String("record_id", recordID))
		return nil
	}
	return err
}

// update writes fn into the record. A missing record cannot appear on
// retry, so it fails the job.
func (h *Handlers) update(ctx context.Context, recordID string, fn func(*result.Record)) error {
	err := result.Update(ctx, h.records, recordID, fn)
	if errors.Is(err, nocode.ErrRecordNotFound) {
		return job.Permanent(fmt.Errorf("result record %q: %w", recordID, err))
	}
	if err != nil {
		return fmt.Errorf("update result record %q: %w", recordID, err)
	}
	return nil
}

func required(field, value string) error {
	if value == "" {
		return job.Permanent(fmt.Errorf("payload field %q is required", field))
	}
	return nil
}
