// Package errors defines the error taxonomy shared by every stage of the
// hybrid retrieval pipeline and maps it onto process exit codes.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCorpus          = errors.New("empty corpus")
	ErrCorruptState         = errors.New("corrupt encoder state")
	ErrNotFound             = errors.New("not found")
	ErrDimensionMismatch    = errors.New("dimension mismatch")
	ErrInvalidRecord        = errors.New("invalid record")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrTimeout              = errors.New("operation timed out")
	ErrNotServing           = errors.New("retriever not serving")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInternal             = errors.New("internal error")
)

// Exit codes returned by the CLI for each error class.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitInput    = 2
	ExitState    = 3
	ExitData     = 4
	ExitExternal = 5
	ExitNotReady = 6
)

// OpError attaches the failing operation and, when there is one, the
// offending document identifier to a taxonomy sentinel.
type OpError struct {
	Op      string
	ID      string
	Err     error
	Message string
}

func (e *OpError) Error() string {
	msg := e.Op + ": " + e.Err.Error()
	if e.ID != "" {
		msg += fmt.Sprintf(" (id %q)", e.ID)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func New(op string, sentinel error, message string) *OpError {
	return &OpError{
		Op:      op,
		Err:     sentinel,
		Message: message,
	}
}

func Newf(op string, sentinel error, format string, args ...any) *OpError {
	return &OpError{
		Op:      op,
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// ForID is like Newf but names the document the failure belongs to.
func ForID(op string, id string, sentinel error, format string, args ...any) *OpError {
	return &OpError{
		Op:      op,
		ID:      id,
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// Is and As re-export the standard library helpers so callers importing this
// package under the name "errors" keep access to them.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

// ExitCode maps an error onto the CLI exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrEmptyCorpus):
		return ExitInput
	case errors.Is(err, ErrCorruptState), errors.Is(err, ErrNotFound):
		return ExitState
	case errors.Is(err, ErrDimensionMismatch), errors.Is(err, ErrInvalidRecord):
		return ExitData
	case errors.Is(err, ErrEmbeddingUnavailable), errors.Is(err, ErrTimeout):
		return ExitExternal
	case errors.Is(err, ErrNotServing):
		return ExitNotReady
	default:
		return ExitFailure
	}
}
