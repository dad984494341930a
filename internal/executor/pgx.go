package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
)

// PgxExecutor runs statements on a pgx pool inside a READ ONLY transaction
// with a server-side statement timeout.
type PgxExecutor struct {
	pool   *pgxpool.Pool
	opts   Options
	logger *observability.Logger
}

// NewPgxPool connects a pool to dsn
func NewPgxPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.NewDatabaseConnectionError(err)
	}
	return pool, nil
}

// NewPgxExecutor creates an executor over pool
func NewPgxExecutor(pool *pgxpool.Pool, opts Options) *PgxExecutor {
	return &PgxExecutor{
		pool:   pool,
		opts:   opts.withDefaults(),
		logger: observability.NewLogger("executor"),
	}
}

// Run implements Executor
func (e *PgxExecutor) Run(ctx context.Context, query string) (*Result, error) {
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

func (e *PgxExecutor) query(ctx context.Context, wrapped string) (*Result, error) {
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // the transaction never commits
	}()

	timeout := fmt.Sprintf("SET LOCAL statement_timeout = %d", e.opts.Timeout.Milliseconds())
	if _, err := tx.Exec(ctx, timeout); err != nil {
		return nil, fmt.Errorf("failed to set statement timeout: %w", err)
	}

	rows, err := tx.Query(ctx, wrapped)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, fd := range fields {
		cols[i] = fd.Name
	}

	result := &Result{Columns: cols, Data: []map[string]interface{}{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
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

// Ping checks the pool
func (e *PgxExecutor) Ping(ctx context.Context) error {
	return e.pool.Ping(ctx)
}
