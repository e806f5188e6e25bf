package generation

import "context"

// Request is one call to the provider.
type Request struct {
	// Op names the client operation, used for logs and metrics.
	Op string
	// System is the instruction framing the task.
	System string
	// Prompt is the user content.
	Prompt string
	// MaxTokens bounds the provider's output.
	MaxTokens int
}

// Response is the provider's answer.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns input plus output tokens.
func (r *Response) TotalTokens() int { return r.InputTokens + r.OutputTokens }

// Provider is the request/response contract of the external model service.
// Implementations should return *Error to classify failures; anything else
// is treated as transient.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
