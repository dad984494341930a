package llm

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "rate limit error should be retryable",
			err:      &testError{msg: "rate limit exceeded: too many requests"},
			expected: true,
		},
		{
			name:     "503 message should be retryable",
			err:      &testError{msg: "API error 503: service unavailable"},
			expected: true,
		},
		{
			name:     "timeout should be retryable",
			err:      &testError{msg: "request timeout exceeded"},
			expected: true,
		},
		{
			name:     "connection refused should be retryable",
			err:      &testError{msg: "connection refused by server"},
			expected: true,
		},
		{
			name:     "401 message should not be retryable",
			err:      &testError{msg: "API error 401: unauthorized"},
			expected: false,
		},
		{
			name:     "bad request message should not be retryable",
			err:      &testError{msg: "bad request: invalid parameters"},
			expected: false,
		},
		{
			name:     "wrapped 429 should be retryable",
			err:      fmt.Errorf("send: %w", &APIError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}),
			expected: true,
		},
		{
			name:     "502 should be retryable",
			err:      &APIError{StatusCode: http.StatusBadGateway},
			expected: true,
		},
		{
			name:     "401 should not be retryable",
			err:      &APIError{StatusCode: http.StatusUnauthorized, Message: "authentication failed"},
			expected: false,
		},
		{
			name:     "400 should not be retryable",
			err:      &APIError{StatusCode: http.StatusBadRequest},
			expected: false,
		},
		{
			name:     "cancelled context should not be retryable",
			err:      context.Canceled,
			expected: false,
		},
		{
			name:     "nil is not retryable",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryableError(tt.err))
		})
	}
}

func TestAPIError_Message(t *testing.T) {
	assert.Equal(t, "invalid API key: nope", (&APIError{StatusCode: 401, Message: "nope"}).Error())
	assert.Equal(t, "rate limit exceeded: slow", (&APIError{StatusCode: 429, Message: "slow"}).Error())
	assert.Equal(t, "Claude API error 503: busy", (&APIError{StatusCode: 503, Message: "busy"}).Error())
}

func TestCalculateBackoff(t *testing.T) {
	baseDelay := 100 * time.Millisecond
	maxDelay := 5 * time.Second

	tests := []struct {
		name        string
		attempt     int
		expectedMin time.Duration
		expectedMax time.Duration
	}{
		{
			name:        "first retry (attempt 0)",
			attempt:     0,
			expectedMin: 50 * time.Millisecond,
			expectedMax: 150 * time.Millisecond,
		},
		{
			name:        "second retry (attempt 1)",
			attempt:     1,
			expectedMin: 100 * time.Millisecond,
			expectedMax: 300 * time.Millisecond,
		},
		{
			name:        "third retry (attempt 2)",
			attempt:     2,
			expectedMin: 200 * time.Millisecond,
			expectedMax: 600 * time.Millisecond,
		},
		{
			name:        "large attempt should cap at maxDelay",
			attempt:     10,
			expectedMin: 2500 * time.Millisecond,
			expectedMax: 7500 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Run multiple times to account for jitter
			for i := 0; i < 10; i++ {
				delay := calculateBackoff(tt.attempt, baseDelay, maxDelay)
				assert.GreaterOrEqual(t, delay, tt.expectedMin)
				assert.LessOrEqual(t, delay, tt.expectedMax)
			}
		})
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	assert.Equal(t, 3, DefaultRetryConfig.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, DefaultRetryConfig.BaseDelay)
	assert.Equal(t, 5*time.Second, DefaultRetryConfig.MaxDelay)
}

// testError is a simple error type for testing
type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}
