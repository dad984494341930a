// Package pipeline runs one natural-language question through clarification,
// SQL generation, validation, repair, execution and explanation.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/seanankenbruck/analytics-sql-ai/internal/clarification"
	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
	"github.com/seanankenbruck/analytics-sql-ai/internal/executor"
	"github.com/seanankenbruck/analytics-sql-ai/internal/guardrail"
	"github.com/seanankenbruck/analytics-sql-ai/internal/history"
	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
	"github.com/seanankenbruck/analytics-sql-ai/internal/quality"
	"github.com/seanankenbruck/analytics-sql-ai/internal/schema"
)

// Fixed user-facing texts
const (
	InsufficientQuestion      = "Please clarify the metric, grouping, or time range."
	UnrequestedFilterQuestion = "The model added filters not requested by you—please clarify filter criteria explicitly."
	DefaultSessionID          = "default"
)

// Request is one user turn
type Request struct {
	SessionID     string `json:"session_id,omitempty"`
	Query         string `json:"query" binding:"required"`
	AllowDefaults bool   `json:"allow_defaults,omitempty"`
}

// CatalogSource supplies the schema catalog for a request
type CatalogSource interface {
	Current() *schema.Catalog
}

// Config tunes the orchestrator
type Config struct {
	// Strict forbids filling defaults for ambiguous questions
	Strict       bool
	DefaultLimit int
	// CarryContext appends resolved clarifications to later fresh questions
	CarryContext         bool
	Examples             int
	AllowedFilterColumns []string
}

// DefaultConfig returns strict mode with a LIMIT of 100
func DefaultConfig() Config {
	return Config{
		Strict:               true,
		DefaultLimit:         quality.DefaultLimit,
		Examples:             history.DefaultExamples,
		AllowedFilterColumns: quality.DefaultAllowedFilterColumns,
	}
}

// Dependencies are the collaborators of an Orchestrator. Catalogs, Generator
// and Executor are required; the rest fall back to in-process defaults.
type Dependencies struct {
	Catalogs  CatalogSource
	Generator Generator
	Executor  executor.Executor
	Clarifier Clarifier
	Explainer Explainer
	History   HistoryStore
	Store     clarification.Store
	Locker    clarification.Locker
	Machine   *clarification.Machine
	Validator *guardrail.Validator
	Gate      *quality.Gate
}

// Orchestrator is safe for concurrent use. Conversation state is loaded and
// saved per session under the session's lock.
type Orchestrator struct {
	deps   Dependencies
	cfg    Config
	logger *observability.Logger
}

// New creates an orchestrator
func New(deps Dependencies, cfg Config) (*Orchestrator, error) {
	if deps.Catalogs == nil || deps.Generator == nil || deps.Executor == nil {
		return nil, fmt.Errorf("pipeline requires a catalog source, a generator and an executor")
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = quality.DefaultLimit
	}
	if cfg.Examples <= 0 {
		cfg.Examples = history.DefaultExamples
	}
	if deps.Explainer == nil {
		deps.Explainer = StaticExplainer{}
	}
	if deps.Store == nil {
		deps.Store = clarification.NewMemoryStore(24 * time.Hour)
	}
	if deps.Locker == nil {
		deps.Locker = clarification.NewLocalLocker()
	}
	if deps.Machine == nil {
		deps.Machine = clarification.NewMachine(cfg.Strict)
	}
	if deps.Validator == nil {
		deps.Validator = guardrail.NewValidator()
	}
	if deps.Gate == nil {
		deps.Gate = quality.NewGate()
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: observability.NewLogger("pipeline")}, nil
}

// resolution is the outcome of the clarification stage
type resolution struct {
	question string
	query    string
}

func (r resolution) needsClarification() bool {
	return r.question != ""
}

// Process runs one turn. Pipeline outcomes, including guardrail and execution
// failures, are returned as a Response; the error is reserved for failures of
// the service itself such as an unreachable session store or generator.
func (o *Orchestrator) Process(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errors.New(errors.ErrCodeMissingRequired, "Query is required").
			WithSuggestion("Ask a question about the data, for example: total revenue by store last month.")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	ctx = observability.WithSessionID(ctx, sessionID)

	defer func() {
		status, code := "failed", string(errors.CodeOf(err))
		if resp != nil {
			status, code = string(resp.Status), string(resp.Code)
		}
		observability.RecordPipelineMetrics(status, code, time.Since(start))
		fields := map[string]interface{}{
			"query":       query,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if err != nil {
			o.logger.Error(ctx, "Pipeline failed", err, fields)
			return
		}
		if code != "" {
			fields["error_code"] = code
		}
		o.logger.Info(ctx, "Pipeline finished", fields)
	}()

	catalog := o.deps.Catalogs.Current()
	if catalog == nil {
		return nil, errors.NewSchemaError("no schema catalog is loaded")
	}

	res, err := o.resolve(ctx, sessionID, query, req.AllowDefaults, catalog)
	if err != nil {
		return nil, err
	}
	if res.needsClarification() {
		return NeedsClarification(res.question), nil
	}

	return o.answer(ctx, req, res, catalog)
}

// resolve applies the turn to the session's conversation state under the
// session lock and decides the query to generate from.
func (o *Orchestrator) resolve(ctx context.Context, sessionID, query string, allowDefaults bool, catalog *schema.Catalog) (resolution, error) {
	unlock, err := o.deps.Locker.Lock(ctx, sessionID)
	if err != nil {
		return resolution{}, errors.NewSessionStoreError(err, sessionID)
	}
	defer unlock()

	state, err := o.deps.Store.Load(ctx, sessionID)
	if err != nil {
		return resolution{}, errors.NewSessionStoreError(err, sessionID)
	}

	t := o.deps.Machine.Advance(state, query, allowDefaults)
	if t.Discarded {
		o.logger.Info(ctx, "Discarded pending clarification for unrelated query", map[string]interface{}{
			"query": query,
		})
	}

	if t.Kind == clarification.TransitionProceed && o.deps.Clarifier != nil {
		verdict, err := o.deps.Clarifier.Ask(ctx, query, catalog)
		if err != nil {
			return resolution{}, err
		}
		if verdict.Needed {
			question := verdict.Question
			if question == "" {
				question = InsufficientQuestion
			}
			t = o.deps.Machine.RequireClarification(state, query, question, allowDefaults)
		}
	}

	res := resolution{query: t.Query}
	switch {
	case t.NeedsClarification():
		res.question = t.Question
		o.logger.Info(ctx, "Clarification requested", map[string]interface{}{
			"query":    query,
			"question": t.Question,
			"repeat":   t.Kind == clarification.TransitionRepeat,
		})
	case t.Kind == clarification.TransitionProceed && o.cfg.CarryContext:
		res.query = state.ApplyContext(t.Query)
	}

	if err := o.deps.Store.Save(ctx, sessionID, state); err != nil {
		return resolution{}, errors.NewSessionStoreError(err, sessionID)
	}
	return res, nil
}

// answer generates, validates, repairs, executes and explains
func (o *Orchestrator) answer(ctx context.Context, req Request, res resolution, catalog *schema.Catalog) (*Response, error) {
	fullQuery := res.query
	examples := o.examples(ctx, fullQuery)

	proposal, err := o.deps.Generator.ProposeSQL(ctx, GenerationRequest{Query: fullQuery, Catalog: catalog, Examples: examples})
	if err != nil {
		return nil, err
	}

	if proposal.Insufficient {
		if o.cfg.Strict || !req.AllowDefaults || strings.Contains(fullQuery, clarification.DefaultFill) {
			return NeedsClarification(InsufficientQuestion), nil
		}
		fullQuery = fullQuery + " " + clarification.DefaultFill
		proposal, err = o.deps.Generator.ProposeSQL(ctx, GenerationRequest{Query: fullQuery, Catalog: catalog, Examples: examples})
		if err != nil {
			return nil, err
		}
		if proposal.Insufficient {
			return NeedsClarification(InsufficientQuestion), nil
		}
	}

	sql, resp, err := o.validated(ctx, fullQuery, proposal.SQL, catalog, examples)
	if resp != nil || err != nil {
		return resp, err
	}

	if req.AllowDefaults && strings.Contains(fullQuery, clarification.DefaultFill) {
		if cols := quality.UnrequestedFilters(sql, req.Query, o.cfg.AllowedFilterColumns); len(cols) > 0 {
			o.logger.Warn(ctx, "Generated SQL added unrequested filters", map[string]interface{}{
				"sql":     sql,
				"columns": cols,
			})
			return NeedsClarification(UnrequestedFilterQuestion), nil
		}
	}

	sql, resp = o.repair(ctx, sql, fullQuery, catalog)
	if resp != nil {
		return resp, nil
	}

	result, err := o.deps.Executor.Run(ctx, sql)
	if err != nil {
		return Failure(errors.ErrCodeExecution, sql, errorMessage(err)), nil
	}

	explanation, err := o.deps.Explainer.Explain(ctx, fullQuery, sql, result)
	if err != nil {
		o.logger.Warn(ctx, "Explanation failed, using row count summary", map[string]interface{}{
			"error": err.Error(),
		})
		explanation, _ = StaticExplainer{}.Explain(ctx, fullQuery, sql, result)
	}

	if o.deps.History != nil {
		if err := o.deps.History.Record(ctx, fullQuery, sql); err != nil {
			o.logger.Warn(ctx, "Failed to record query history", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return Success(sql, result, explanation), nil
}

// validated returns SQL that passed the guardrail, regenerating once when the
// first attempt references unknown tables or columns. A non-nil Response is a
// terminal outcome.
func (o *Orchestrator) validated(ctx context.Context, fullQuery, first string, catalog *schema.Catalog, examples []history.Example) (string, *Response, error) {
	outcome := o.deps.Validator.Validate(first, catalog)
	if outcome.Valid() {
		return first, nil, nil
	}

	o.logger.Warn(ctx, "Generated SQL failed validation", map[string]interface{}{
		"sql":       first,
		"violation": outcome.Kind.String(),
		"message":   outcome.Message,
	})

	if !outcome.Kind.Retryable() {
		return "", violation(outcome, first, ""), nil
	}

	proposal, err := o.deps.Generator.ProposeSQL(ctx, GenerationRequest{
		Query:      fullQuery,
		Catalog:    catalog,
		Examples:   examples,
		Correction: &Correction{Error: outcome.Message, PreviousSQL: first},
	})
	if err != nil {
		return "", nil, err
	}
	if proposal.Insufficient {
		return "", NeedsClarification(InsufficientQuestion), nil
	}

	retry := o.deps.Validator.Validate(proposal.SQL, catalog)
	if !retry.Valid() {
		o.logger.Warn(ctx, "Regenerated SQL failed validation", map[string]interface{}{
			"sql":       proposal.SQL,
			"violation": retry.Kind.String(),
			"message":   retry.Message,
		})
		return "", violation(retry, first, proposal.SQL), nil
	}
	return proposal.SQL, nil, nil
}

// repair appends the default LIMIT when missing and validates the result again
func (o *Orchestrator) repair(ctx context.Context, sql, fullQuery string, catalog *schema.Catalog) (string, *Response) {
	repaired, changed := quality.EnsureLimit(sql, o.cfg.DefaultLimit)
	if changed {
		if outcome := o.deps.Validator.Validate(repaired, catalog); !outcome.Valid() {
			return "", violation(outcome, sql, repaired)
		}
	}

	if err := o.deps.Gate.Check(repaired, fullQuery); err != nil {
		o.logger.Warn(ctx, "Quality check flagged generated SQL", map[string]interface{}{
			"sql":   repaired,
			"issue": err.Error(),
		})
	}
	return repaired, nil
}

func (o *Orchestrator) examples(ctx context.Context, query string) []history.Example {
	if o.deps.History == nil {
		return nil
	}
	examples, err := o.deps.History.Similar(ctx, query, o.cfg.Examples)
	if err != nil {
		o.logger.Warn(ctx, "Failed to find similar queries", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return examples
}

// Reset drops the conversation state of a session
func (o *Orchestrator) Reset(ctx context.Context, sessionID string) error {
	unlock, err := o.deps.Locker.Lock(ctx, sessionID)
	if err != nil {
		return errors.NewSessionStoreError(err, sessionID)
	}
	defer unlock()

	if err := o.deps.Store.Delete(ctx, sessionID); err != nil {
		return errors.NewSessionStoreError(err, sessionID)
	}
	return nil
}

// violation is the terminal guardrail error. retry is empty when the first
// attempt was not retried.
func violation(outcome guardrail.Outcome, first, retry string) *Response {
	msg := fmt.Sprintf("GUARDRAIL_VIOLATION: %s | Model attempts: original=%q", outcome.Message, first)
	if retry != "" {
		msg += fmt.Sprintf(", retry=%q", retry)
	}
	return Failure(errors.ErrCodeGuardrailViolation, "", msg)
}

// errorMessage prefers the underlying cause of an enhanced error
func errorMessage(err error) string {
	var enhanced *errors.EnhancedError
	if errors.As(err, &enhanced) && enhanced.Details != "" {
		return enhanced.Details
	}
	return err.Error()
}
