package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/analytics-sql-ai/internal/app"
	"github.com/seanankenbruck/analytics-sql-ai/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "nlsql",
	Short: "Natural language to SQL with guardrails",
	Long: `nlsql turns analytics questions into validated SQL.

Every generated statement is checked against the schema catalog before it
runs: only read-only SELECTs over known tables and columns get through, and
ambiguous questions are answered with a clarifying question instead of a
guess. Configuration comes from the same environment variables and secret
files as the query processor.`,
}

func init() {
	rootCmd.AddCommand(validateCmd, schemaCmd, evalCmd, chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errRejected) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// loadConfig reads and validates the environment configuration
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.NewDefaultLoader().Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildApp wires the full pipeline from the environment
func buildApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg)
}
