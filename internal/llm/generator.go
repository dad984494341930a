package llm

import (
	"context"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
	"github.com/seanankenbruck/analytics-sql-ai/internal/pipeline"
	"github.com/seanankenbruck/analytics-sql-ai/internal/schema"
)

// SQLGenerator asks the model for SQL and cleans up the reply
type SQLGenerator struct {
	client  Client
	dialect schema.Dialect
}

// NewSQLGenerator creates a generator for the given SQL dialect
func NewSQLGenerator(client Client, dialect schema.Dialect) *SQLGenerator {
	return &SQLGenerator{client: client, dialect: dialect}
}

// ProposeSQL implements pipeline.Generator
func (g *SQLGenerator) ProposeSQL(ctx context.Context, req pipeline.GenerationRequest) (pipeline.Proposal, error) {
	prompt := BuildUserPrompt(g.dialect, req.Query, req.Catalog, req.Examples)
	if req.Correction != nil {
		prompt = BuildCorrectionPrompt(req.Correction.Error, req.Correction.PreviousSQL, req.Catalog)
	}

	completion, err := g.client.Complete(ctx, CompletionRequest{
		System:      SQLSystemPrompt(g.dialect),
		Prompt:      prompt,
		MaxTokens:   generationMaxTokens,
		Temperature: generationTemperature,
	})
	if err != nil {
		return pipeline.Proposal{}, errors.NewQueryGenerationError(err)
	}

	if IsInsufficient(completion.Text) {
		return pipeline.InsufficientInformation(), nil
	}
	return pipeline.SQLProposal(ExtractSQL(completion.Text)), nil
}
