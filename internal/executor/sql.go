package executor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
)

// Open connects with a database/sql driver: "postgres" (lib/pq) or "sqlite"
// (modernc.org/sqlite).
func Open(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.NewDatabaseConnectionError(err)
	}
	if driver == "sqlite" {
		// an in-memory database exists per connection
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// SQLExecutor runs statements through database/sql
type SQLExecutor struct {
	db     *sql.DB
	opts   Options
	logger *observability.Logger
}

// NewSQLExecutor creates an executor over db
func NewSQLExecutor(db *sql.DB, opts Options) *SQLExecutor {
	return &SQLExecutor{
		db:     db,
		opts:   opts.withDefaults(),
		logger: observability.NewLogger("executor"),
	}
}

// Run implements Executor
func (e *SQLExecutor) Run(ctx context.Context, query string) (*Result, error) {
	wrapped, err := Wrap(query, e.opts.MaxRows)
	if err != nil {
		return nil, rejected(err, query)
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	start := time.Now()
	result, err := e.query(ctx, wrapped)
	observability.RecordDBMetrics("execute", time.Since(start), rowCount(result), err)
	if err != nil {
		e.logger.Error(ctx, "Query execution failed", err, map[string]interface{}{
			"sql":         query,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil, errors.NewExecutionError(err, query)
	}
	return result, nil
}

// query reads inside a read-only transaction that is always rolled back
func (e *SQLExecutor) query(ctx context.Context, wrapped string) (*Result, error) {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // the transaction never commits

	rows, err := tx.QueryContext(ctx, wrapped)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Result{Columns: cols, Data: []map[string]interface{}{}}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			row[c] = normalizeValue(values[i])
		}
		result.Data = append(result.Data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.RowCount = len(result.Data)
	return result, nil
}

// Ping checks the connection
func (e *SQLExecutor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

func rowCount(r *Result) int {
	if r == nil {
		return 0
	}
	return r.RowCount
}
