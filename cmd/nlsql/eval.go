package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/analytics-sql-ai/internal/evaluation"
)

var (
	evalCasesPath string
	evalJSON      bool
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run evaluation cases through the pipeline",
	Long: `eval replays a set of questions and conversations through the full pipeline
and compares each final status with the expected one. Without --cases the
built-in golden cases are used. The exit status is non-zero when any case
fails.`,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVarP(&evalCasesPath, "cases", "c", "",
		"YAML file with evaluation cases")
	evalCmd.Flags().BoolVar(&evalJSON, "json", false,
		"Print the summary as JSON")
}

func runEval(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cases := evaluation.GoldenCases()
	if evalCasesPath != "" {
		var err error
		if cases, err = evaluation.LoadCases(evalCasesPath); err != nil {
			return err
		}
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := evaluation.NewRunner(a.Pipeline).Run(ctx, cases)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if evalJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CASE\tEXPECTED\tGOT\tRESULT")
		for _, r := range summary.Results {
			result := "pass"
			if !r.Passed {
				result = "FAIL"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Expected, r.Got, result)
		}
		w.Flush()

		rep := summary.Report
		fmt.Fprintf(out, "\ntotal=%d success_rate=%.2f clarification_rate=%.2f error_rate=%.2f\n",
			rep.TotalTests, rep.SuccessRate, rep.ClarificationRate, rep.ErrorRate)
	}

	if failed := summary.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d cases failed", len(failed), len(summary.Results))
	}
	return nil
}
