// Package errors provides enhanced error types with helpful context and suggestions
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Schema errors
	ErrCodeSchemaInvalid ErrorCode = "SCHEMA_INVALID"

	// Guardrail errors
	ErrCodeForbiddenOperation ErrorCode = "FORBIDDEN_OPERATION"
	ErrCodeHallucinatedTable  ErrorCode = "HALLUCINATED_TABLE"
	ErrCodeHallucinatedColumn ErrorCode = "HALLUCINATED_COLUMN"
	ErrCodeGuardrailViolation ErrorCode = "GUARDRAIL_VIOLATION"
	ErrCodeInsufficientInfo   ErrorCode = "INSUFFICIENT_INFORMATION"
	ErrCodeQualityCheck       ErrorCode = "QUALITY_CHECK_FAILED"
	ErrCodeUnrequestedFilter  ErrorCode = "UNREQUESTED_FILTER"

	// Capability errors
	ErrCodeQueryGeneration ErrorCode = "QUERY_GENERATION_FAILED"
	ErrCodeClarification   ErrorCode = "CLARIFICATION_FAILED"
	ErrCodeExplanation     ErrorCode = "EXPLANATION_FAILED"
	ErrCodeExecution       ErrorCode = "EXECUTION_FAILED"

	// Storage errors
	ErrCodeSessionStore       ErrorCode = "SESSION_STORE_FAILED"
	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseQuery      ErrorCode = "DATABASE_QUERY_FAILED"

	// Input validation errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"
)

// EnhancedError represents an error with additional context and helpful information
type EnhancedError struct {
	Code          ErrorCode              `json:"code"`
	Message       string                 `json:"message"`
	Details       string                 `json:"details,omitempty"`
	Suggestion    string                 `json:"suggestion,omitempty"`
	Documentation string                 `json:"documentation,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Cause         error                  `json:"-"`
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Details != "" {
		sb.WriteString(fmt.Sprintf(": %s", e.Details))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(" (cause: %v)", e.Cause))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *EnhancedError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly error message with suggestions
func (e *EnhancedError) UserMessage() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Details != "" {
		sb.WriteString(fmt.Sprintf("\n\nDetails: %s", e.Details))
	}

	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion))
	}

	if e.Documentation != "" {
		sb.WriteString(fmt.Sprintf("\n\nLearn more: %s", e.Documentation))
	}

	return sb.String()
}

// New creates a new EnhancedError
func New(code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Metadata: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with enhanced context
func Wrap(err error, code ErrorCode, message string) *EnhancedError {
	return &EnhancedError{
		Code:     code,
		Message:  message,
		Cause:    err,
		Metadata: make(map[string]interface{}),
	}
}

// WithDetails adds detailed information about the error
func (e *EnhancedError) WithDetails(details string) *EnhancedError {
	e.Details = details
	return e
}

// WithSuggestion adds a suggestion on how to fix the error
func (e *EnhancedError) WithSuggestion(suggestion string) *EnhancedError {
	e.Suggestion = suggestion
	return e
}

// WithMetadata adds additional metadata to the error
func (e *EnhancedError) WithMetadata(key string, value interface{}) *EnhancedError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps the standard library errors.As
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// CodeOf returns the code of the first EnhancedError in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var enhanced *EnhancedError
	if errors.As(err, &enhanced) {
		return enhanced.Code
	}
	return ""
}

// Common error constructors with pre-configured messages

// NewSchemaError creates an error for a structurally malformed schema catalog
func NewSchemaError(details string) *EnhancedError {
	return New(ErrCodeSchemaInvalid, "Schema catalog is invalid").
		WithDetails(details).
		WithSuggestion("Check the schema source: every table needs a unique name, columns, and foreign keys that point at existing tables and columns.")
}

// NewForbiddenOperationError creates an error for non-SELECT or destructive statements
func NewForbiddenOperationError(details string) *EnhancedError {
	return New(ErrCodeForbiddenOperation, "Only read-only SELECT queries are allowed").
		WithDetails(details).
		WithSuggestion("Ask a question that reads data. Statements that modify data or schema are never executed.")
}

// NewGuardrailViolationError creates the terminal error returned after the single regeneration attempt also fails validation
func NewGuardrailViolationError(cause error, original, retry string) *EnhancedError {
	return Wrap(cause, ErrCodeGuardrailViolation, "Generated SQL failed validation twice").
		WithDetails(fmt.Sprintf("original=%q, retry=%q", original, retry)).
		WithSuggestion("Try rephrasing the question using table or column names from the schema.").
		WithMetadata("original_sql", original).
		WithMetadata("retry_sql", retry)
}

// NewQueryGenerationError creates an error for SQL generation failures
func NewQueryGenerationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeQueryGeneration, "Failed to generate SQL query").
		WithDetails("The language model was unable to produce a SQL statement for the question").
		WithSuggestion("This is typically a temporary issue. Please try your query again in a moment.").
		WithMetadata("retryable", true)
}

// NewClarificationError creates an error for clarifier failures
func NewClarificationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeClarification, "Failed to check whether the question needs clarification").
		WithSuggestion("This is typically a temporary issue. Please try your query again in a moment.").
		WithMetadata("retryable", true)
}

// NewExplanationError creates an error for explainer failures
func NewExplanationError(err error) *EnhancedError {
	return Wrap(err, ErrCodeExplanation, "Failed to explain the query result").
		WithMetadata("retryable", true)
}

// NewExecutionError creates an error for failures reported by the executor
func NewExecutionError(err error, sql string) *EnhancedError {
	return Wrap(err, ErrCodeExecution, "Query execution failed").
		WithDetails(err.Error()).
		WithMetadata("sql", sql)
}

// NewSessionStoreError creates an error for conversation state storage failures
func NewSessionStoreError(err error, sessionID string) *EnhancedError {
	return Wrap(err, ErrCodeSessionStore, "Conversation state is unavailable").
		WithDetails(fmt.Sprintf("Could not access conversation state for session %s", sessionID)).
		WithSuggestion("This is an internal server error. Please try again in a moment.").
		WithMetadata("retryable", true)
}

// NewInvalidInputError creates an error for invalid input
func NewInvalidInputError(field string, reason string) *EnhancedError {
	return New(ErrCodeInvalidInput, "Invalid input").
		WithDetails(fmt.Sprintf("Field '%s' is invalid: %s", field, reason)).
		WithSuggestion("Please check the API documentation for the expected format and try again.")
}

// NewRateLimitError creates an error for clients over their request budget
func NewRateLimitError(limitPerMinute int) *EnhancedError {
	return New(ErrCodeRateLimited, "Rate limit exceeded").
		WithDetails(fmt.Sprintf("At most %d requests per minute are allowed", limitPerMinute)).
		WithSuggestion("Wait a moment before sending more questions.").
		WithMetadata("retryable", true)
}

// NewDatabaseConnectionError creates an error for database connection failures
func NewDatabaseConnectionError(err error) *EnhancedError {
	return Wrap(err, ErrCodeDatabaseConnection, "Database connection failed").
		WithDetails("Unable to connect to the database").
		WithSuggestion("This is an internal server error. The service may be experiencing issues. Please try again in a moment.").
		WithMetadata("retryable", true)
}

// NewDatabaseQueryError creates an error for database query failures
func NewDatabaseQueryError(err error, operation string) *EnhancedError {
	return Wrap(err, ErrCodeDatabaseQuery, "Database query failed").
		WithDetails(fmt.Sprintf("Failed to execute database operation: %s", operation)).
		WithSuggestion("This is an internal server error. If the problem persists, contact support.").
		WithMetadata("retryable", true)
}
