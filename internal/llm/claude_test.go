package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func newTestClaude(t *testing.T, handler http.HandlerFunc) *ClaudeClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClaudeClient("test-key", "")
	require.NoError(t, err)
	return client.WithBaseURL(server.URL + "/").WithRetryConfig(fastRetry)
}

func TestNewClaudeClient(t *testing.T) {
	_, err := NewClaudeClient("", "")
	assert.Error(t, err)

	client, err := NewClaudeClient("key", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, client.Model())
}

func TestClaudeClient_Complete(t *testing.T) {
	client := newTestClaude(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, ClaudeVersion, r.Header.Get("anthropic-version"))

		var req ClaudeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "be terse", req.System)
		assert.Equal(t, 64, req.MaxTokens)
		if assert.Len(t, req.Messages, 1) {
			assert.Equal(t, "user", req.Messages[0].Role)
			assert.Equal(t, "hello", req.Messages[0].Content)
		}

		json.NewEncoder(w).Encode(ClaudeResponse{
			Model:   req.Model,
			Content: []ContentBlock{{Type: "text", Text: " SELECT "}, {Type: "text", Text: "1 "}},
			Usage:   Usage{InputTokens: 10, OutputTokens: 3},
		})
	})

	got, err := client.Complete(context.Background(), CompletionRequest{System: "be terse", Prompt: "hello", MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", got.Text)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, 10, got.InputTokens)
	assert.Equal(t, 3, got.OutputTokens)
}

func TestClaudeClient_DefaultMaxTokens(t *testing.T) {
	client := newTestClaude(t, func(w http.ResponseWriter, r *http.Request) {
		var req ClaudeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, MaxTokens, req.MaxTokens)
		assert.Empty(t, req.System)
		json.NewEncoder(w).Encode(ClaudeResponse{Content: []ContentBlock{{Type: "text", Text: "ok"}}})
	})

	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
}

func TestClaudeClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestClaude(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(ClaudeErrorResponse{Error: ClaudeError{Type: "overloaded_error", Message: "busy"}})
			return
		}
		json.NewEncoder(w).Encode(ClaudeResponse{Content: []ContentBlock{{Type: "text", Text: "ok"}}})
	})

	got, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClaudeClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	client := newTestClaude(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	})

	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries (2) exceeded")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "slow down", apiErr.Message)
}

func TestClaudeClient_AuthErrorIsNotRetried(t *testing.T) {
	var calls int32
	client := newTestClaude(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(ClaudeErrorResponse{Error: ClaudeError{Type: "authentication_error", Message: "bad key"}})
	})

	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid API key: bad key")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClaudeClient_Ping(t *testing.T) {
	client := newTestClaude(t, func(w http.ResponseWriter, r *http.Request) {
		var req ClaudeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 1, req.MaxTokens)
		json.NewEncoder(w).Encode(ClaudeResponse{})
	})
	assert.NoError(t, client.Ping(context.Background()))
}
