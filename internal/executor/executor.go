// Package executor runs validated SELECT statements against the analytics
// database with a row cap and a time limit.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
	"github.com/seanankenbruck/analytics-sql-ai/internal/guardrail"
)

const (
	DefaultMaxRows = 1000
	DefaultTimeout = 5 * time.Second
)

// Executor runs one statement and returns its rows
type Executor interface {
	Run(ctx context.Context, sql string) (*Result, error)
}

// Result is the outcome of a successful execution
type Result struct {
	RowCount int                      `json:"row_count"`
	Data     []map[string]interface{} `json:"data"`
	// Columns keeps the column order of Data
	Columns []string `json:"-"`
}

// Options bound every execution
type Options struct {
	MaxRows int
	Timeout time.Duration
}

// DefaultOptions returns the standard limits
func DefaultOptions() Options {
	return Options{MaxRows: DefaultMaxRows, Timeout: DefaultTimeout}
}

func (o Options) withDefaults() Options {
	if o.MaxRows <= 0 {
		o.MaxRows = DefaultMaxRows
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// ErrNotSelect is returned for statements that are not a single SELECT
var ErrNotSelect = fmt.Errorf("only SELECT queries are allowed")

// Wrap checks that sql is a read-only SELECT and caps it as
// "SELECT * FROM (<sql>) AS safe_query LIMIT <maxRows>". Trailing semicolons
// and comments are removed first.
func Wrap(sql string, maxRows int) (string, error) {
	tokens := guardrail.Tokenize(sql)

	end := len(tokens)
	for end > 0 && tokens[end-1].Type == guardrail.Semicolon {
		end--
	}
	if end == 0 {
		return "", ErrNotSelect
	}
	first := tokens[0]
	if !first.Is("SELECT") && !first.Is("WITH") {
		return "", ErrNotSelect
	}
	for _, t := range tokens[:end] {
		if t.Type == guardrail.Semicolon {
			return "", fmt.Errorf("%w: multiple statements", ErrNotSelect)
		}
	}

	src := []rune(sql)
	body := strings.TrimSpace(string(src[first.Pos:tokens[end-1].End]))
	return fmt.Sprintf("SELECT * FROM (%s) AS safe_query LIMIT %d", body, maxRows), nil
}

// normalizeValue turns driver values into JSON-friendly ones
func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return val
	}
}

func rejected(err error, sql string) error {
	return errors.NewExecutionError(err, sql).
		WithSuggestion("Only a single read-only SELECT statement can be executed.")
}
