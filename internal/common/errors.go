package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")

	// ErrDocumentNotReady is returned when a pipeline run is requested for a
	// document whose extracted text is not in the ready state.
	ErrDocumentNotReady = errors.New("document is not ready for processing")

	// ErrActiveJobExists is returned when a second run is requested while a
	// non-terminal extraction job already exists for the document.
	ErrActiveJobExists = errors.New("an active extraction job already exists")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// StageError is a failure inside one pipeline stage. Transient failures
// (timeouts, rate limits, connection resets) may be retried within the run's
// retry budget; terminal failures (malformed input, impossible requests)
// fail the run immediately.
type StageError struct {
	Stage     string
	Message   string
	Cause     error
	Transient bool
}

func (e *StageError) Error() string {
	kind := "terminal"
	if e.Transient {
		kind = "transient"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s stage %s: %s: %v", e.Stage, kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s stage %s: %s", e.Stage, kind, e.Message)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

func NewTransientStageError(stage, message string, cause error) *StageError {
	return &StageError{Stage: stage, Message: message, Cause: cause, Transient: true}
}

func NewTerminalStageError(stage, message string, cause error) *StageError {
	return &StageError{Stage: stage, Message: message, Cause: cause}
}

// IsTransient reports whether err is a stage failure worth retrying.
func IsTransient(err error) bool {
	var se *StageError
	return errors.As(err, &se) && se.Transient
}

// IsTerminal reports whether err is a stage failure that must not be retried.
func IsTerminal(err error) bool {
	var se *StageError
	return errors.As(err, &se) && !se.Transient
}

// InvariantViolation indicates that persisted state contradicts a documented
// invariant. It is always a bug, never expected operation.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated (%s): %s", e.Invariant, e.Detail)
}

func NewInvariantViolation(invariant, detail string) *InvariantViolation {
	return &InvariantViolation{Invariant: invariant, Detail: detail}
}
