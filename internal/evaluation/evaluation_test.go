package evaluation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanankenbruck/analytics-sql-ai/internal/pipeline"
)

// scriptedProcessor answers by exact query text and records sessions
type scriptedProcessor struct {
	responses map[string]*pipeline.Response
	errs      map[string]error
	sessions  []string
}

func (p *scriptedProcessor) Process(_ context.Context, req pipeline.Request) (*pipeline.Response, error) {
	p.sessions = append(p.sessions, req.SessionID)
	if err, ok := p.errs[req.Query]; ok {
		return nil, err
	}
	if resp, ok := p.responses[req.Query]; ok {
		return resp, nil
	}
	return pipeline.Failure("", "", "unexpected query "+req.Query), nil
}

func TestMetrics_Report(t *testing.T) {
	m := &Metrics{}
	for _, s := range []string{"success", "success", "needs_clarification", "error", "boom", "success"} {
		m.Update(s)
	}

	assert.Equal(t, Report{TotalTests: 6, SuccessRate: 0.5, ClarificationRate: 0.17, ErrorRate: 0.33}, m.Report())
}

func TestMetrics_EmptyReport(t *testing.T) {
	assert.Equal(t, Report{}, (&Metrics{}).Report())
}

func TestParseCases(t *testing.T) {
	cases, err := ParseCases([]byte(`
cases:
  - name: ambiguous
    input: Show top stores
    expected_status: needs_clarification
  - name: resolved
    conversation:
      - Show top stores
      - by total revenue
    expected_status: success
`))
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, []string{"Show top stores"}, cases[0].Turns())
	assert.Equal(t, []string{"Show top stores", "by total revenue"}, cases[1].Turns())
}

func TestParseCases_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "cases: []", "no evaluation cases"},
		{"no turns", "cases:\n  - name: x\n    expected_status: success", "neither input nor conversation"},
		{"both", "cases:\n  - name: x\n    input: a\n    conversation: [b]\n    expected_status: success", "both input and conversation"},
		{"status", "cases:\n  - name: x\n    input: a\n    expected_status: done", "unknown expected_status"},
		{"yaml", "cases: [", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCases([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadCases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cases:\n  - name: x\n    input: a\n    expected_status: error\n"), 0o644))

	cases, err := LoadCases(path)
	require.NoError(t, err)
	assert.Equal(t, []Case{{Name: "x", Input: "a", ExpectedStatus: "error"}}, cases)

	_, err = LoadCases(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGoldenCasesAreValid(t *testing.T) {
	for _, c := range GoldenCases() {
		assert.NoError(t, c.validate(), c.Name)
	}
}

func TestRunner_Run(t *testing.T) {
	processor := &scriptedProcessor{
		responses: map[string]*pipeline.Response{
			"Show top stores":  pipeline.NeedsClarification("Top by which metric?"),
			"by total revenue": pipeline.Success("SELECT store_id FROM orders ORDER BY amount DESC LIMIT 100", nil, ""),
			"no limit":         pipeline.Success("SELECT store_id FROM orders", nil, ""),
			"bad table":        pipeline.Failure("", "", "GUARDRAIL_VIOLATION: Hallucinated table: sales"),
		},
		errs: map[string]error{"outage": fmt.Errorf("session store unavailable")},
	}

	summary, err := NewRunner(processor).Run(context.Background(), []Case{
		{Name: "ask", Input: "Show top stores", ExpectedStatus: "needs_clarification"},
		{Name: "resolve", Conversation: []string{"Show top stores", "by total revenue"}, ExpectedStatus: "success"},
		{Name: "regression", Input: "no limit", ExpectedStatus: "success"},
		{Name: "guardrail", Input: "bad table", ExpectedStatus: "error"},
		{Name: "service error", Input: "outage", ExpectedStatus: "success"},
	})
	require.NoError(t, err)

	require.Len(t, summary.Results, 5)
	assert.True(t, summary.Results[0].Passed)
	assert.True(t, summary.Results[1].Passed)
	assert.True(t, summary.Results[3].Passed)

	regression := summary.Results[2]
	assert.False(t, regression.Passed)
	assert.Equal(t, "error", regression.Got)
	assert.Contains(t, regression.Error, "Regression detected")

	outage := summary.Results[4]
	assert.Equal(t, "error", outage.Got)
	assert.Equal(t, "session store unavailable", outage.Error)

	assert.Equal(t, Report{TotalTests: 5, SuccessRate: 0.2, ClarificationRate: 0.2, ErrorRate: 0.6}, summary.Report)

	failed := summary.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, "regression", failed[0].Name)
	assert.Equal(t, "service error", failed[1].Name)
}

func TestRunner_SessionPerCase(t *testing.T) {
	processor := &scriptedProcessor{responses: map[string]*pipeline.Response{
		"a": pipeline.NeedsClarification("?"),
		"b": pipeline.NeedsClarification("?"),
	}}

	_, err := NewRunner(processor).Run(context.Background(), []Case{
		{Name: "conversation", Conversation: []string{"a", "b"}, ExpectedStatus: "needs_clarification"},
		{Name: "single", Input: "a", ExpectedStatus: "needs_clarification"},
	})
	require.NoError(t, err)

	require.Len(t, processor.sessions, 3)
	assert.Equal(t, processor.sessions[0], processor.sessions[1])
	assert.NotEqual(t, processor.sessions[0], processor.sessions[2])
	assert.True(t, strings.HasPrefix(processor.sessions[2], "eval-"))
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(&scriptedProcessor{}).Run(ctx, GoldenCases())
	assert.ErrorIs(t, err, context.Canceled)
}
