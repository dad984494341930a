package guardrail

import (
	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
)

// ViolationKind classifies why a statement was rejected
type ViolationKind int

const (
	None ViolationKind = iota
	ForbiddenOperation
	HallucinatedTable
	HallucinatedColumn
)

func (k ViolationKind) String() string {
	switch k {
	case None:
		return "none"
	case ForbiddenOperation:
		return "forbidden_operation"
	case HallucinatedTable:
		return "hallucinated_table"
	case HallucinatedColumn:
		return "hallucinated_column"
	default:
		return "unknown"
	}
}

// Retryable reports whether regenerating the SQL may fix the violation.
// Forbidden operations are never retried.
func (k ViolationKind) Retryable() bool {
	return k == HallucinatedTable || k == HallucinatedColumn
}

// Outcome is the result of validating one statement. The zero value is Valid.
type Outcome struct {
	Kind       ViolationKind `json:"-"`
	Message    string        `json:"message,omitempty"`
	Identifier string        `json:"identifier,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// Valid reports whether the statement passed every check
func (o Outcome) Valid() bool {
	return o.Kind == None
}

// Err converts an invalid outcome into an EnhancedError, or nil when valid
func (o Outcome) Err() error {
	var e *errors.EnhancedError
	switch o.Kind {
	case None:
		return nil
	case ForbiddenOperation:
		e = errors.NewForbiddenOperationError(o.Message)
	case HallucinatedTable:
		e = errors.New(errors.ErrCodeHallucinatedTable, "Generated SQL references a table that does not exist").
			WithDetails(o.Message).
			WithSuggestion("Use only tables listed in the schema.")
	case HallucinatedColumn:
		e = errors.New(errors.ErrCodeHallucinatedColumn, "Generated SQL references a column that does not exist").
			WithDetails(o.Message).
			WithSuggestion("Use only columns declared on the tables the query joins.")
	default:
		e = errors.New(errors.ErrCodeGuardrailViolation, "Generated SQL failed validation").WithDetails(o.Message)
	}
	if o.Identifier != "" {
		e.WithMetadata("identifier", o.Identifier)
	}
	if o.Suggestion != "" {
		e.WithMetadata("did_you_mean", o.Suggestion)
	}
	return e
}

func valid() Outcome {
	return Outcome{}
}

func forbidden(message, identifier string) Outcome {
	return Outcome{Kind: ForbiddenOperation, Message: message, Identifier: identifier}
}
