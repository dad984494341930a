package evaluation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
	"github.com/seanankenbruck/analytics-sql-ai/internal/pipeline"
	"github.com/seanankenbruck/analytics-sql-ai/internal/quality"
)

// Processor runs one pipeline turn
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

// CaseResult is the outcome of one case
type CaseResult struct {
	Name     string             `json:"name"`
	Expected string             `json:"expected_status"`
	Got      string             `json:"status"`
	Passed   bool               `json:"passed"`
	Error    string             `json:"error,omitempty"`
	Response *pipeline.Response `json:"-"`
	Duration time.Duration      `json:"-"`
}

// Summary is the outcome of a run
type Summary struct {
	Results []CaseResult `json:"results"`
	Report  Report       `json:"report"`
}

// Failed returns the cases whose status did not match
func (s *Summary) Failed() []CaseResult {
	var out []CaseResult
	for _, r := range s.Results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// Runner plays cases against a Processor. Each case gets its own session so
// conversations cannot leak into each other.
type Runner struct {
	processor Processor
	logger    *observability.Logger
}

// NewRunner creates a runner
func NewRunner(processor Processor) *Runner {
	return &Runner{processor: processor, logger: observability.NewLogger("evaluation")}
}

// Run plays every case. A service error ends the case with status "error";
// a successful response whose SQL fails the regression check does too.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Summary, error) {
	metrics := &Metrics{}
	summary := &Summary{Results: make([]CaseResult, 0, len(cases))}

	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := r.runCase(ctx, c)
		metrics.Update(result.Got)
		summary.Results = append(summary.Results, result)

		fields := map[string]interface{}{
			"case":        c.Name,
			"expected":    result.Expected,
			"got":         result.Got,
			"duration_ms": result.Duration.Milliseconds(),
		}
		if result.Error != "" {
			fields["error"] = result.Error
		}
		if result.Passed {
			r.logger.Info(ctx, "Evaluation case passed", fields)
		} else {
			r.logger.Warn(ctx, "Evaluation case failed", fields)
		}
	}

	summary.Report = metrics.Report()
	return summary, nil
}

func (r *Runner) runCase(ctx context.Context, c Case) CaseResult {
	start := time.Now()
	result := CaseResult{Name: c.Name, Expected: c.ExpectedStatus}
	sessionID := "eval-" + uuid.New().String()

	var resp *pipeline.Response
	for _, turn := range c.Turns() {
		var err error
		resp, err = r.processor.Process(ctx, pipeline.Request{SessionID: sessionID, Query: turn})
		if err != nil {
			result.Got = string(pipeline.StatusError)
			result.Error = err.Error()
			result.Duration = time.Since(start)
			return result
		}
	}

	result.Response = resp
	result.Got = string(resp.Status)
	if resp.Status == pipeline.StatusError {
		result.Error = resp.Error
	}
	if err := quality.RegressionCheck(string(resp.Status), resp.SQL); err != nil {
		result.Got = string(pipeline.StatusError)
		result.Error = err.Error()
	}
	result.Passed = result.Got == c.ExpectedStatus
	result.Duration = time.Since(start)
	return result
}
