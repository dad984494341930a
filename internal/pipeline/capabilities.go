package pipeline

import (
	"context"

	"github.com/seanankenbruck/analytics-sql-ai/internal/executor"
	"github.com/seanankenbruck/analytics-sql-ai/internal/history"
	"github.com/seanankenbruck/analytics-sql-ai/internal/schema"
)

// Proposal is what a Generator returns: either SQL or a statement that the
// schema cannot answer the question.
type Proposal struct {
	SQL          string
	Insufficient bool
}

// SQLProposal wraps a candidate statement
func SQLProposal(sql string) Proposal {
	return Proposal{SQL: sql}
}

// InsufficientInformation is the proposal for unanswerable questions
func InsufficientInformation() Proposal {
	return Proposal{Insufficient: true}
}

// Correction describes why the previous attempt was rejected
type Correction struct {
	Error       string
	PreviousSQL string
}

// GenerationRequest is one call to the Generator
type GenerationRequest struct {
	Query      string
	Catalog    *schema.Catalog
	Examples   []history.Example
	Correction *Correction
}

// Generator proposes SQL for a question
type Generator interface {
	ProposeSQL(ctx context.Context, req GenerationRequest) (Proposal, error)
}

// Clarification is the Clarifier's verdict
type Clarification struct {
	Needed   bool
	Question string
}

// Clarifier decides whether a question must be clarified before generation
type Clarifier interface {
	Ask(ctx context.Context, query string, catalog *schema.Catalog) (Clarification, error)
}

// Explainer describes an executed query's result in plain language
type Explainer interface {
	Explain(ctx context.Context, query, sql string, result *executor.Result) (string, error)
}

// HistoryStore supplies and records example question/SQL pairs
type HistoryStore interface {
	Similar(ctx context.Context, query string, limit int) ([]history.Example, error)
	Record(ctx context.Context, query, sql string) error
}
