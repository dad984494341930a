package pipeline

import (
	"context"
	"fmt"

	"github.com/seanankenbruck/analytics-sql-ai/internal/executor"
)

// StaticExplainer summarizes a result by its row count. It is the default
// when no model is configured and the fallback when the explainer fails.
type StaticExplainer struct{}

// Explain implements Explainer
func (StaticExplainer) Explain(_ context.Context, _ string, _ string, result *executor.Result) (string, error) {
	switch {
	case result == nil || result.RowCount == 0:
		return "No matching records were found.", nil
	case result.RowCount == 1:
		return "The query returned 1 row.", nil
	default:
		return fmt.Sprintf("The query returned %d rows.", result.RowCount), nil
	}
}
