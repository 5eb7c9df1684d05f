// Package errors provides the typed error kinds returned by the task store.
package errors

import (
	"errors"
	"fmt"
)

// Kind is the stable identifier of an error class. Transport layers map it to
// their own codes.
type Kind string

const (
	KindProjectNotFound          Kind = "ProjectNotFound"
	KindTaskNotFound             Kind = "TaskNotFound"
	KindProjectAlreadyCompleted  Kind = "ProjectAlreadyCompleted"
	// KindTaskAlreadyApproved completes the taxonomy for clients that map it.
	// The registry never returns it: re-approving a task is a no-op.
	KindTaskAlreadyApproved      Kind = "TaskAlreadyApproved"
	KindTaskNotDone              Kind = "TaskNotDone"
	KindTasksNotAllDone          Kind = "TasksNotAllDone"
	KindTasksNotAllApproved      Kind = "TasksNotAllApproved"
	KindCannotModifyApprovedTask Kind = "CannotModifyApprovedTask"
	KindInvalidArgument          Kind = "InvalidArgument"
	KindInvalidState             Kind = "InvalidState"
	KindMissingParameter         Kind = "MissingParameter"
	KindFileReadError            Kind = "FileReadError"
	KindFileWriteError           Kind = "FileWriteError"
	KindReadOnlyFileSystem       Kind = "ReadOnlyFileSystem"
	KindConfigurationError       Kind = "ConfigurationError"
	KindLLMGenerationError       Kind = "LLMGenerationError"
)

// Sentinels for errors.Is matching. Any *Error of the same kind matches.
var (
	ErrProjectNotFound          = &Error{Kind: KindProjectNotFound}
	ErrTaskNotFound             = &Error{Kind: KindTaskNotFound}
	ErrProjectAlreadyCompleted  = &Error{Kind: KindProjectAlreadyCompleted}
	ErrTaskAlreadyApproved      = &Error{Kind: KindTaskAlreadyApproved}
	ErrTaskNotDone              = &Error{Kind: KindTaskNotDone}
	ErrTasksNotAllDone          = &Error{Kind: KindTasksNotAllDone}
	ErrTasksNotAllApproved      = &Error{Kind: KindTasksNotAllApproved}
	ErrCannotModifyApprovedTask = &Error{Kind: KindCannotModifyApprovedTask}
	ErrInvalidArgument          = &Error{Kind: KindInvalidArgument}
	ErrInvalidState             = &Error{Kind: KindInvalidState}
	ErrMissingParameter         = &Error{Kind: KindMissingParameter}
	ErrFileRead                 = &Error{Kind: KindFileReadError}
	ErrFileWrite                = &Error{Kind: KindFileWriteError}
	ErrReadOnlyFileSystem       = &Error{Kind: KindReadOnlyFileSystem}
	ErrConfiguration            = &Error{Kind: KindConfigurationError}
	ErrLLMGeneration            = &Error{Kind: KindLLMGenerationError}
)

// Error is a domain or storage failure carrying a stable kind and a
// human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// APIError represents an error from an outbound API call (LLM providers).
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504, 529:
			return true
		}
	}
	return false
}
