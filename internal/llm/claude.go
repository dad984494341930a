package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
)

const (
	ClaudeAPIBaseURL = "https://api.anthropic.com/v1"
	ClaudeVersion    = "2023-06-01"
	DefaultModel     = "claude-3-5-sonnet-20241022"
	MaxTokens        = 1000
)

// ClaudeClient implements the Client interface using Anthropic's Claude API
type ClaudeClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	retry   RetryConfig
}

// Claude API request structures
type ClaudeRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Claude API response structures
type ClaudeResponse struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
	Model   string         `json:"model"`
	Usage   Usage          `json:"usage"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Error response structure
type ClaudeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ClaudeErrorResponse struct {
	Error ClaudeError `json:"error"`
}

// NewClaudeClient creates a new Claude client
func NewClaudeClient(apiKey, model string) (*ClaudeClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	if model == "" {
		model = DefaultModel
	}

	return &ClaudeClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: ClaudeAPIBaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: DefaultRetryConfig,
	}, nil
}

// WithBaseURL points the client at another endpoint
func (c *ClaudeClient) WithBaseURL(baseURL string) *ClaudeClient {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// WithTimeout sets the per-request HTTP timeout
func (c *ClaudeClient) WithTimeout(timeout time.Duration) *ClaudeClient {
	c.client.Timeout = timeout
	return c
}

// WithRetryConfig replaces the retry policy
func (c *ClaudeClient) WithRetryConfig(cfg RetryConfig) *ClaudeClient {
	c.retry = cfg
	return c
}

// Model returns the configured model name
func (c *ClaudeClient) Model() string {
	return c.model
}

// Complete sends one prompt to Claude and returns the concatenated text blocks
func (c *ClaudeClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = MaxTokens
	}
	request := ClaudeRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      req.System,
		Messages: []Message{
			{
				Role:    "user",
				Content: req.Prompt,
			},
		},
	}

	start := time.Now()
	response, err := c.sendClaudeRequestWithRetry(ctx, request)
	if err != nil {
		observability.RecordLLMMetrics("complete", time.Since(start), 0, err)
		return nil, fmt.Errorf("failed to send request to Claude: %w", err)
	}
	tokens := response.Usage.InputTokens + response.Usage.OutputTokens
	observability.RecordLLMMetrics("complete", time.Since(start), tokens, nil)

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Completion{
		Text:         strings.TrimSpace(text.String()),
		Model:        response.Model,
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
	}, nil
}

// Ping checks that the API accepts the key with a minimal request
func (c *ClaudeClient) Ping(ctx context.Context) error {
	_, err := c.sendClaudeRequest(ctx, ClaudeRequest{
		Model:     c.model,
		MaxTokens: 1,
		Messages:  []Message{{Role: "user", Content: "ping"}},
	})
	return err
}

// sendClaudeRequest handles the HTTP communication with Claude API
func (c *ClaudeClient) sendClaudeRequest(ctx context.Context, request ClaudeRequest) (*ClaudeResponse, error) {
	// Marshal request to JSON
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", ClaudeVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Handle HTTP errors
	if resp.StatusCode != http.StatusOK {
		return nil, c.handleAPIError(resp.StatusCode, body)
	}

	var claudeResponse ClaudeResponse
	if err := json.Unmarshal(body, &claudeResponse); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &claudeResponse, nil
}

// APIError is a non-200 reply from the API
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Sprintf("invalid API key: %s", e.Message)
	case http.StatusTooManyRequests:
		return fmt.Sprintf("rate limit exceeded: %s", e.Message)
	case http.StatusBadRequest:
		return fmt.Sprintf("bad request: %s", e.Message)
	case http.StatusInternalServerError:
		return fmt.Sprintf("Claude API internal error: %s", e.Message)
	default:
		return fmt.Sprintf("Claude API error %d: %s", e.StatusCode, e.Message)
	}
}

// Retryable reports whether the status is worth retrying
func (e *APIError) Retryable() bool {
	return isHTTPStatusRetryable(e.StatusCode)
}

// handleAPIError processes Claude API errors
func (c *ClaudeClient) handleAPIError(statusCode int, body []byte) error {
	var errorResponse ClaudeErrorResponse
	if err := json.Unmarshal(body, &errorResponse); err != nil || errorResponse.Error.Message == "" {
		return &APIError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
	}
	return &APIError{
		StatusCode: statusCode,
		Type:       errorResponse.Error.Type,
		Message:    errorResponse.Error.Message,
	}
}
