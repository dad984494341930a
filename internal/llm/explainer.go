package llm

import (
	"context"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
	"github.com/seanankenbruck/analytics-sql-ai/internal/executor"
)

// LLMExplainer turns a result into a short plain-English explanation
type LLMExplainer struct {
	client Client
}

// NewLLMExplainer creates an explainer
func NewLLMExplainer(client Client) *LLMExplainer {
	return &LLMExplainer{client: client}
}

// Explain implements pipeline.Explainer
func (e *LLMExplainer) Explain(ctx context.Context, query, sql string, result *executor.Result) (string, error) {
	completion, err := e.client.Complete(ctx, CompletionRequest{
		System:      ExplanationSystemPrompt,
		Prompt:      BuildExplanationPrompt(query, sql, result),
		MaxTokens:   explanationMaxTokens,
		Temperature: explanationTemperature,
	})
	if err != nil {
		return "", errors.NewExplanationError(err)
	}
	return completion.Text, nil
}
