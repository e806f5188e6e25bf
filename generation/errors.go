package generation

import (
	"errors"
	"fmt"
)

// Kind classifies a generation failure.
type Kind int

const (
	// KindTransient covers rate limits, network failures, timeouts and
	// provider-side errors. A retry may succeed.
	KindTransient Kind = iota + 1
	// KindInvalidInput covers input the provider cannot act on: empty or
	// oversized text, or a request the provider rejected as malformed.
	KindInvalidInput
	// KindAuth means the provider rejected the credentials. The request is
	// fine and succeeds once the key is fixed, so it is retried.
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindInvalidInput:
		return "invalid input"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by Client operations.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generation: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Permanent reports whether retrying the same request is pointless.
func (e *Error) Permanent() bool { return e.Kind == KindInvalidInput }

// Transient builds a KindTransient error.
func Transient(op string, err error) *Error {
	return &Error{Op: op, Kind: KindTransient, Err: err}
}

// InvalidInput builds a KindInvalidInput error.
func InvalidInput(op string, err error) *Error {
	return &Error{Op: op, Kind: KindInvalidInput, Err: err}
}

// Auth builds a KindAuth error.
func Auth(op string, err error) *Error {
	return &Error{Op: op, Kind: KindAuth, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain. Errors that
// carry no classification are treated as transient.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindTransient
}

// wrap classifies a provider error under op, keeping an existing Kind.
// Unclassified errors, including context deadlines, are transient.
func wrap(op string, err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return &Error{Op: op, Kind: ge.Kind, Err: ge.Err}
	}
	return Transient(op, err)
}
