// Package errors classifies failures of the ranking pipeline. Callers wrap
// one of the sentinels; the transport layers map the sentinel to a status
// code, a stable machine-readable code and a message safe to return.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnknownStrategy   = fmt.Errorf("%w: unknown strategy", ErrInvalidInput)
	ErrModelUnavailable  = errors.New("model unavailable")
	ErrCorpusUnavailable = errors.New("corpus unavailable")
	ErrTimeout           = errors.New("operation timed out")
	ErrInternal          = errors.New("internal error")
)

type kind struct {
	sentinel error
	status   int
	code     string
	public   string
}

// Order matters: ErrUnknownStrategy also matches ErrInvalidInput.
var kinds = []kind{
	{ErrUnknownStrategy, http.StatusBadRequest, "unknown_strategy", ""},
	{ErrInvalidInput, http.StatusBadRequest, "invalid_input", ""},
	{ErrModelUnavailable, http.StatusServiceUnavailable, "model_unavailable", "model unavailable"},
	{ErrCorpusUnavailable, http.StatusServiceUnavailable, "corpus_unavailable", "job corpus unavailable"},
	{ErrTimeout, http.StatusServiceUnavailable, "timeout", "ranking timed out"},
}

var internalKind = kind{ErrInternal, http.StatusInternalServerError, "internal", "ranking failed"}

func classify(err error) kind {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k
		}
	}
	return internalKind
}

// AppError carries a caller-facing message and an explicit status code.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string { return e.Err.Error() + ": " + e.Message }

func (e *AppError) Unwrap() error { return e.Err }

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// Invalid builds a 400 InvalidInput error whose message is shown verbatim.
func Invalid(format string, args ...any) *AppError {
	return Newf(ErrInvalidInput, http.StatusBadRequest, format, args...)
}

// ModelUnavailable marks err as a model load or inference failure.
func ModelUnavailable(model string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrModelUnavailable, model, err)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return classify(err).status
}

// Code is a stable identifier for the error class, e.g. "unknown_strategy".
func Code(err error) string {
	return classify(err).code
}

// PublicMessage returns the text safe to show to API callers. Input errors
// are shown in full since they describe the caller's own request.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	k := classify(err)
	if k.public == "" {
		return err.Error()
	}
	return k.public
}
