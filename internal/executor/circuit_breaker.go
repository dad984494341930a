package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
)

// CircuitBreakerExecutor stops calling a failing database for a while.
// Statements rejected before reaching the database do not count as failures.
type CircuitBreakerExecutor struct {
	next    Executor
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerExecutor wraps next
func NewCircuitBreakerExecutor(next Executor, name string) *CircuitBreakerExecutor {
	logger := observability.NewLogger("executor")
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isRejection(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "Executor circuit breaker changed state", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	}
	return &CircuitBreakerExecutor{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Run implements Executor
func (cb *CircuitBreakerExecutor) Run(ctx context.Context, sql string) (*Result, error) {
	result, err := cb.breaker.Execute(func() (interface{}, error) {
		return cb.next.Run(ctx, sql)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, errors.NewExecutionError(fmt.Errorf("circuit breaker: %w", err), sql).
			WithMetadata("retryable", true)
	}
	if err != nil {
		return nil, err
	}
	return result.(*Result), nil
}

// State returns the breaker state
func (cb *CircuitBreakerExecutor) State() gobreaker.State {
	return cb.breaker.State()
}

func isRejection(err error) bool {
	return errors.Is(err, ErrNotSelect)
}
