package job

import "context"

// Definition is a typed job definition with a handler function.
// T is the payload type (must be JSON-serializable).
type Definition[T any] struct {
	// Type is the job type this definition handles.
	Type Type

	// Handler processes the job payload.
	Handler func(ctx context.Context, payload T) error

	// OnFailure, when set, runs once after the job is marked failed so the
	// handler can write the failure into its result record.
	OnFailure func(ctx context.Context, payload T, cause error) error

	// Opts configures attempts, priority and timeout for jobs of this type.
	Opts Options
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](t Type, handler func(ctx context.Context, payload T) error, opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Type:    t,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// WithFailureHook sets def.OnFailure and returns def.
func (def *Definition[T]) WithFailureHook(fn func(ctx context.Context, payload T, cause error) error) *Definition[T] {
	def.OnFailure = fn
	return def
}
