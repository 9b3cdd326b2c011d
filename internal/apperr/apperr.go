// Package apperr defines the error taxonomy shared by every pipeline stage.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure so callers can branch without string matching.
type Kind string

const (
	DataSourceUnavailable Kind = "data_source_unavailable"
	DataSourceError       Kind = "data_source_error"
	ParseError            Kind = "parse_error"
	InsufficientData      Kind = "insufficient_data"
	ForecastError         Kind = "forecast_error"
	InvalidArgument       Kind = "invalid_argument"
	Internal              Kind = "internal"
)

// Error is a classified pipeline error.
type Error struct {
	// Kind is the failure class.
	Kind Kind
	// Stage names the pipeline stage that failed (e.g. "ingest", "condition", "fit").
	Stage string
	// Message is a short, user-presentable description.
	Message string
	// Err is the wrapped cause, if any.
	Err error
}

// New creates an Error.
func New(kind Kind, stage, message string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message, Err: err}
}

// Newf creates an Error with a formatted message and no cause.
func Newf(kind Kind, stage, format string, a ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, a...)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the same call may succeed.
// Only connectivity failures qualify; model fitting is deterministic for the same input.
func (e *Error) Retryable() bool {
	return e.Kind == DataSourceUnavailable
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message extracts the user-facing message from err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}
