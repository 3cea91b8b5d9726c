package util

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConfigInvalid = errors.New("invalid configuration")
)

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Fields  map[string]string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s (fields: %v)", e.Message, e.Fields)
}

// Is checks if the error matches the target.
func (e *ValidationError) Is(target error) bool {
	if target == ErrInvalidInput {
		return true
	}
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message, Fields: make(map[string]string)}
}

// AddField adds a field error.
func (e *ValidationError) AddField(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

// HasErrors reports whether any field error was recorded.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// OrNil returns the error if it has field errors, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// NoMatchingFlowError is returned when no flow applies to a request
// and the API requires one.
type NoMatchingFlowError struct {
	API    string
	Method string
	Path   string
}

// Error implements the error interface.
func (e *NoMatchingFlowError) Error() string {
	return fmt.Sprintf("no flow of api %s matches %s %s", e.API, e.Method, e.Path)
}

// Is checks if the error matches the target.
func (e *NoMatchingFlowError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	_, ok := target.(*NoMatchingFlowError)
	return ok
}

// NewNoMatchingFlowError creates a new NoMatchingFlowError.
func NewNoMatchingFlowError(api, method, path string) *NoMatchingFlowError {
	return &NoMatchingFlowError{API: api, Method: method, Path: path}
}
