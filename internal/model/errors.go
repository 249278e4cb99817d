package model

import (
	"errors"
	"fmt"
)

// IndexError is the error type raised by the synchronization engine.
//
// Codes are stable strings so that CLI output and persisted tracker notes
// can be matched by scripts.
type IndexError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Task is the task name active when the error was raised, if any.
	Task string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes index errors.
type ErrorCode string

const (
	ErrCodeBadDateRange            ErrorCode = "bad-date-range"
	ErrCodeUnknownAction           ErrorCode = "unknown-action"
	ErrCodeMissingData             ErrorCode = "missing-data"
	ErrCodeDatabaseNotFound        ErrorCode = "database-not-found"
	ErrCodeTaskInProgress          ErrorCode = "existing-task-in-progress"
	ErrCodeNoTaskTracker           ErrorCode = "no-task-tracker"
	ErrCodeBadDateFormat           ErrorCode = "bad-date-format"
	ErrCodeBadSearchParameter      ErrorCode = "bad-search-parameter"
	ErrCodeBadConnectionParameters ErrorCode = "bad-connection-parameters"
	ErrCodeBadType                 ErrorCode = "bad-type"

	// ErrCodeDocumentNotFound marks a transient upstream failure: the
	// listing, feed or companion document could not be loaded within the
	// load budget.
	ErrCodeDocumentNotFound ErrorCode = "document-not-found"
)

var codeMessages = map[ErrorCode]string{
	ErrCodeBadDateRange:            "Date range is not valid.",
	ErrCodeUnknownAction:           "Unknown action.",
	ErrCodeMissingData:             "Required data is missing.",
	ErrCodeDatabaseNotFound:        "Database not found.",
	ErrCodeTaskInProgress:          "A task with the same name is in progress.",
	ErrCodeNoTaskTracker:           "No task tracker is open.",
	ErrCodeBadDateFormat:           "Date format is not valid.",
	ErrCodeBadSearchParameter:      "Search parameter is not valid.",
	ErrCodeBadConnectionParameters: "Connection parameters are not valid.",
	ErrCodeBadType:                 "Value has the wrong type.",
	ErrCodeDocumentNotFound:        "Document could not be loaded.",
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = codeMessages[e.Code]
	}
	if e.Task != "" {
		msg = fmt.Sprintf("%s (task=%s)", msg, e.Task)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

// Errorf creates an IndexError with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *IndexError {
	return &IndexError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an IndexError around an underlying cause.
func WrapError(code ErrorCode, message string, err error) *IndexError {
	return &IndexError{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first IndexError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsTaskInProgress reports whether err is the single-flight conflict.
func IsTaskInProgress(err error) bool {
	return IsCode(err, ErrCodeTaskInProgress)
}

// IsPrecondition reports whether err is a precondition failure. These are
// raised immediately and never retried.
func IsPrecondition(err error) bool {
	switch CodeOf(err) {
	case ErrCodeBadDateRange, ErrCodeBadDateFormat, ErrCodeBadSearchParameter,
		ErrCodeMissingData, ErrCodeBadType, ErrCodeUnknownAction:
		return true
	}
	return false
}

// IsTransient reports whether err is an upstream failure that may succeed
// on retry.
func IsTransient(err error) bool {
	return IsCode(err, ErrCodeDocumentNotFound)
}
