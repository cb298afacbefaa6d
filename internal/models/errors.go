package models

import (
	"fmt"

	"go.temporal.io/sdk/temporal"
)

// ErrorType categorizes errors for appropriate handling
//
type ErrorType int

const (
	ErrorTypeTransient        ErrorType = iota // Network, timeout → Temporal retries
	ErrorTypeContextOverflow                   // Context window exceeded → ContinueAsNew
	ErrorTypeAPILimit                          // Rate limit → surface to user
	ErrorTypeToolFailure                       // Individual tool failed → continue workflow
	ErrorTypeFatal                             // Unrecoverable → stop workflow
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeTransient:
		return "Transient"
	case ErrorTypeContextOverflow:
		return "ContextOverflow"
	case ErrorTypeAPILimit:
		return "APILimit"
	case ErrorTypeToolFailure:
		return "ToolFailure"
	case ErrorTypeFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// ActivityError represents an error from a Temporal activity with categorization
//
type ActivityError struct {
	Type      ErrorType              `json:"type"`
	Retryable bool                   `json:"retryable"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *ActivityError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// NewTransientError creates a retryable transient error
func NewTransientError(message string) *ActivityError {
	return &ActivityError{
		Type:      ErrorTypeTransient,
		Retryable: true,
		Message:   message,
	}
}

// NewContextOverflowError creates a context overflow error
func NewContextOverflowError(message string) *ActivityError {
	return &ActivityError{
		Type:      ErrorTypeContextOverflow,
		Retryable: false,
		Message:   message,
	}
}

// NewAPILimitError creates an API rate limit error
func NewAPILimitError(message string) *ActivityError {
	return &ActivityError{
		Type:      ErrorTypeAPILimit,
		Retryable: true,
		Message:   message,
	}
}

// NewToolFailureError creates a tool failure error
func NewToolFailureError(message string) *ActivityError {
	return &ActivityError{
		Type:      ErrorTypeToolFailure,
		Retryable: false,
		Message:   message,
	}
}

// NewFatalError creates a fatal error
func NewFatalError(message string) *ActivityError {
	return &ActivityError{
		Type:      ErrorTypeFatal,
		Retryable: false,
		Message:   message,
	}
}

// LLM activity error type strings. These cross the Temporal activity →
// workflow boundary via temporal.ApplicationError.Type(), which is a plain
// string — workflow code type-switches on these constants, never on the
// ErrorType enum above (that enum never leaves the activity that built it).
const (
	LLMErrTypeTransient       = "LLMTransient"
	LLMErrTypeContextOverflow = "LLMContextOverflow"
	LLMErrTypeAPILimit        = "LLMAPILimit"
	LLMErrTypeToolFailure     = "LLMToolFailure"
	LLMErrTypeFatal           = "LLMFatal"
)

// WrapActivityError converts an *ActivityError raised inside an activity
// into a temporal.ApplicationError, preserving the retryable flag, carrying
// Message through as the error message and mapping Type to one of the
// LLMErrType* strings for workflow-side classification.
func WrapActivityError(err *ActivityError) error {
	var errType string
	switch err.Type {
	case ErrorTypeContextOverflow:
		errType = LLMErrTypeContextOverflow
	case ErrorTypeAPILimit:
		errType = LLMErrTypeAPILimit
	case ErrorTypeToolFailure:
		errType = LLMErrTypeToolFailure
	case ErrorTypeFatal:
		errType = LLMErrTypeFatal
	default:
		errType = LLMErrTypeTransient
	}
	return temporal.NewApplicationErrorWithOptions(err.Message, errType, temporal.ApplicationErrorOptions{
		NonRetryable: !err.Retryable,
	})
}

// Tool activity error type strings, paired with ToolErrorDetails for
// structured context so callers never need to parse the error message.
const (
	ToolErrTypeNotFound   = "ToolNotFound"
	ToolErrTypeTimeout    = "ToolTimeout"
	ToolErrTypeValidation = "ToolValidation"
)

// ToolErrorDetails carries structured context for a tool activity error,
// retrieved via temporal.ApplicationError.Details, never by parsing the
// error message.
type ToolErrorDetails struct {
	Reason string `json:"reason"`
}

// NewToolNotFoundError builds a non-retryable ApplicationError for a tool
// name the registry has no handler for.
func NewToolNotFoundError(toolName string) error {
	reason := fmt.Sprintf("no handler registered for tool %q", toolName)
	return temporal.NewApplicationErrorWithOptions(reason, ToolErrTypeNotFound, temporal.ApplicationErrorOptions{
		NonRetryable: true,
		Details:      []interface{}{ToolErrorDetails{Reason: reason}},
	})
}

// NewToolTimeoutError builds a non-retryable ApplicationError for a tool
// handler that exceeded its deadline.
func NewToolTimeoutError(toolName string, cause error) error {
	reason := fmt.Sprintf("tool %q timed out: %v", toolName, cause)
	return temporal.NewApplicationErrorWithOptions(reason, ToolErrTypeTimeout, temporal.ApplicationErrorOptions{
		NonRetryable: true,
		Details:      []interface{}{ToolErrorDetails{Reason: reason}},
	})
}

// NewToolValidationError builds a non-retryable ApplicationError for a tool
// handler rejecting its arguments or failing to execute in a way retrying
// would not fix.
func NewToolValidationError(toolName string, cause error) error {
	reason := fmt.Sprintf("tool %q rejected input: %v", toolName, cause)
	return temporal.NewApplicationErrorWithOptions(reason, ToolErrTypeValidation, temporal.ApplicationErrorOptions{
		NonRetryable: true,
		Details:      []interface{}{ToolErrorDetails{Reason: reason}},
	})
}
