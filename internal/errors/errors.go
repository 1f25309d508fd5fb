package errors

import (
	"errors"
	"fmt"
)

// ErrorType categorizes failures so callers can decide how to react
type ErrorType string

const (
	ErrTypeInvalidSchema  ErrorType = "invalid_schema"
	ErrTypeSourceNotFound ErrorType = "source_not_found"
	ErrTypeGeneration     ErrorType = "generation"
	ErrTypeStorage        ErrorType = "storage"
	ErrTypeEmbedding      ErrorType = "embedding"
	ErrTypeValidation     ErrorType = "validation"
	ErrTypeNotFound       ErrorType = "not_found"
	ErrTypeConfig         ErrorType = "config"
	ErrTypeNetwork        ErrorType = "network"
	ErrTypeFileSystem     ErrorType = "filesystem"
	ErrTypeInternal       ErrorType = "internal"
)

// Error is a typed error carrying an optional cause and hints for the user
type Error struct {
	Type        ErrorType
	Message     string
	Cause       error
	Suggestions []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion appends a hint shown alongside the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// New creates a typed error
func New(errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message}
}

// Newf creates a typed error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a type and message to an existing error
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message, Cause: err}
}

// Wrapf attaches a type and formatted message to an existing error
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errType, Message: fmt.Sprintf(format, args...), Cause: err}
}

// IsType reports whether any error in the chain has the given type
func IsType(err error, errType ErrorType) bool {
	var structErr *Error
	for err != nil {
		if !errors.As(err, &structErr) {
			return false
		}

		if structErr.Type == errType {
			return true
		}

		err = structErr.Cause
	}

	return false
}

// GetType returns the outermost error type, or internal for untyped errors
func GetType(err error) ErrorType {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// GetSuggestions collects suggestions from every typed error in the chain
func GetSuggestions(err error) []string {
	var suggestions []string

	var structErr *Error
	for err != nil && errors.As(err, &structErr) {
		suggestions = append(suggestions, structErr.Suggestions...)
		err = structErr.Cause
	}

	return suggestions
}

// NewConfigError creates a configuration error with suggestions
func NewConfigError(message, field string) *Error {
	err := New(ErrTypeConfig, message)
	if field != "" {
		err.Message = fmt.Sprintf("%s (field: %s)", message, field)
	}

	return err.
		WithSuggestion("Check your configuration file syntax").
		WithSuggestion("Run with --help to see valid configuration options")
}

// NewInvalidSchemaError reports a schema definition that cannot be stored
func NewInvalidSchemaError(source, reason string) *Error {
	err := Newf(ErrTypeInvalidSchema, "invalid schema %q: %s", source, reason)

	return err.WithSuggestion("Every schema file needs a non-empty \"table_name\" field")
}

// NewSourceNotFoundError reports a schema source that is missing or empty
func NewSourceNotFoundError(location string) *Error {
	err := Newf(ErrTypeSourceNotFound, "no schema definitions found at %s", location)

	return err.WithSuggestion("Point --schemas-dir (or SQL_AGENT_SCHEMAS_DIR) at a directory of *.json files")
}
