package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/analytics-sql-ai/internal/config"
	"github.com/seanankenbruck/analytics-sql-ai/internal/guardrail"
	"github.com/seanankenbruck/analytics-sql-ai/internal/quality"
	"github.com/seanankenbruck/analytics-sql-ai/internal/schema"
	"github.com/seanankenbruck/analytics-sql-ai/internal/server"
)

var (
	validateSchemaPath string
	validateQuestion   string
	validateLimit      int
)

var errRejected = errors.New("statement rejected")

var validateCmd = &cobra.Command{
	Use:   "validate [sql]",
	Short: "Check a SQL statement against the schema catalog",
	Long: `validate runs the guardrail checks on a statement without executing it.
The statement is read from the arguments, or from stdin when none are given.
The exit status is non-zero when the statement is rejected.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateSchemaPath, "schema", "s", "",
		"Path to the schema file (defaults to SCHEMA_PATH)")
	validateCmd.Flags().StringVarP(&validateQuestion, "question", "q", "",
		"Question the statement answers, for the quality checks")
	validateCmd.Flags().IntVar(&validateLimit, "limit", quality.DefaultLimit,
		"LIMIT appended to statements without one")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	sql := strings.TrimSpace(strings.Join(args, " "))
	if sql == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read statement: %w", err)
		}
		sql = strings.TrimSpace(string(data))
	}
	if sql == "" {
		return fmt.Errorf("no SQL statement given")
	}

	path := validateSchemaPath
	if path == "" {
		cfg, err := config.NewDefaultLoader().Load(context.Background())
		if err != nil {
			return err
		}
		path = cfg.Schema.Path
	}
	catalog, err := schema.LoadFile(path)
	if err != nil {
		return err
	}

	resp := server.ValidateStatement(guardrail.NewValidator(), quality.NewGate(), catalog, sql, validateQuestion, validateLimit)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	if !resp.Valid {
		return errRejected
	}
	return nil
}
