package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/seanankenbruck/analytics-sql-ai/internal/executor"
	"github.com/seanankenbruck/analytics-sql-ai/internal/pipeline"
)

var (
	chatHistoryFile string
	chatDefaults    bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions interactively",
	Long: `chat starts a conversation with the pipeline. Clarifying questions are
answered on the next line. Commands:

  /reset      forget the conversation
  /defaults   toggle filling defaults for ambiguous questions
  /exit       quit`,
	RunE: runChat,
}

func init() {
	home, _ := os.UserHomeDir()
	chatCmd.Flags().StringVar(&chatHistoryFile, "history-file", filepath.Join(home, ".nlsql_history"),
		"File for line history")
	chatCmd.Flags().BoolVar(&chatDefaults, "defaults", false,
		"Allow defaults for ambiguous questions (ignored in strict mode)")
}

func runChat(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "nlsql> ",
		HistoryFile:       chatHistoryFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	out := rl.Stdout()
	sessionID := uuid.New().String()
	allowDefaults := chatDefaults
	fmt.Fprintf(out, "Connected. Schema version %s. Type /exit to quit.\n", a.Registry.Current().Version())

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF || ctx.Err() != nil {
				fmt.Fprintln(out, "Goodbye!")
				return nil
			}
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		switch input {
		case "":
			continue
		case "/exit", "/quit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case "/reset":
			if err := a.Pipeline.Reset(ctx, sessionID); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		case "/defaults":
			allowDefaults = !allowDefaults
			fmt.Fprintf(out, "Defaults for ambiguous questions: %v\n", allowDefaults)
			continue
		}

		resp, err := a.Pipeline.Process(ctx, pipeline.Request{
			SessionID:     sessionID,
			Query:         input,
			AllowDefaults: allowDefaults,
		})
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printResponse(out, resp)
	}
}

func printResponse(out io.Writer, resp *pipeline.Response) {
	switch resp.Status {
	case pipeline.StatusNeedsClarification:
		fmt.Fprintf(out, "? %s\n", resp.Question)
	case pipeline.StatusSuccess:
		fmt.Fprintf(out, "%s\n\n", resp.SQL)
		printResult(out, resp.Result)
		if resp.Explanation != "" {
			fmt.Fprintf(out, "\n%s\n", resp.Explanation)
		}
	default:
		if resp.SQL != "" {
			fmt.Fprintf(out, "%s\n", resp.SQL)
		}
		fmt.Fprintf(out, "error: %s\n", resp.Error)
	}
}

func printResult(out io.Writer, result *executor.Result) {
	if result == nil || len(result.Columns) == 0 {
		fmt.Fprintln(out, "(no rows)")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(result.Columns, "\t"))
	for _, row := range result.Data {
		cells := make([]string, len(result.Columns))
		for i, col := range result.Columns {
			cells[i] = fmt.Sprint(row[col])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	fmt.Fprintf(out, "(%d rows)\n", result.RowCount)
}
