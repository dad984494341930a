package llm

import (
	"context"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
	"github.com/seanankenbruck/analytics-sql-ai/internal/pipeline"
	"github.com/seanankenbruck/analytics-sql-ai/internal/schema"
)

// LLMClarifier asks the model whether a question is missing a metric,
// grouping, filter or time range.
type LLMClarifier struct {
	client Client
}

// NewLLMClarifier creates a clarifier
func NewLLMClarifier(client Client) *LLMClarifier {
	return &LLMClarifier{client: client}
}

// Ask implements pipeline.Clarifier
func (c *LLMClarifier) Ask(ctx context.Context, query string, catalog *schema.Catalog) (pipeline.Clarification, error) {
	completion, err := c.client.Complete(ctx, CompletionRequest{
		System:      ClarificationSystemPrompt,
		Prompt:      BuildClarificationPrompt(query, catalog),
		MaxTokens:   clarifierMaxTokens,
		Temperature: clarifierTemperature,
	})
	if err != nil {
		return pipeline.Clarification{}, errors.NewClarificationError(err)
	}

	question, needed := NormalizeClarification(completion.Text)
	return pipeline.Clarification{Needed: needed, Question: question}, nil
}
