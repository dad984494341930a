package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockClient is a mock implementation of the Client interface
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Completion), args.Error(1)
}

func testConfig(t *testing.T, timeout time.Duration) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests: 1,
		Interval:    1 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			t.Logf("State changed from %s to %s", from, to)
		},
	}
}

func TestCircuitBreakerClient_Success(t *testing.T) {
	mockClient := new(MockClient)
	req := CompletionRequest{Prompt: "test prompt"}
	expected := &Completion{Text: "SELECT 1", Model: "test"}
	mockClient.On("Complete", mock.Anything, req).Return(expected, nil)

	cbClient := NewCircuitBreakerClient(mockClient, "test-cb", DefaultCircuitBreakerConfig())

	response, err := cbClient.Complete(context.Background(), req)

	assert.NoError(t, err)
	assert.Equal(t, expected, response)
	assert.Equal(t, gobreaker.StateClosed, cbClient.State())
	mockClient.AssertExpectations(t)
}

func TestCircuitBreakerClient_OpensAfterFailures(t *testing.T) {
	mockClient := new(MockClient)
	req := CompletionRequest{Prompt: "test prompt"}
	mockClient.On("Complete", mock.Anything, req).Return(nil, errors.New("service unavailable"))

	cbClient := NewCircuitBreakerClient(mockClient, "test-cb", testConfig(t, 100*time.Millisecond))

	for i := 0; i < 3; i++ {
		_, err := cbClient.Complete(context.Background(), req)
		assert.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, cbClient.State())

	// Next request should fail immediately without calling the client
	_, err := cbClient.Complete(context.Background(), req)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	mockClient.AssertNumberOfCalls(t, "Complete", 3)
}

func TestCircuitBreakerClient_HalfOpenRecovery(t *testing.T) {
	mockClient := new(MockClient)
	req := CompletionRequest{Prompt: "test prompt"}

	mockClient.On("Complete", mock.Anything, req).Return(nil, errors.New("service unavailable")).Times(3)
	mockClient.On("Complete", mock.Anything, req).Return(&Completion{Text: "SELECT 1"}, nil).Once()

	cbClient := NewCircuitBreakerClient(mockClient, "test-cb", testConfig(t, 50*time.Millisecond))

	for i := 0; i < 3; i++ {
		_, err := cbClient.Complete(context.Background(), req)
		assert.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, cbClient.State())

	// Wait for timeout to transition to half-open
	time.Sleep(100 * time.Millisecond)

	response, err := cbClient.Complete(context.Background(), req)
	assert.NoError(t, err)
	assert.NotNil(t, response)
	assert.Equal(t, "SELECT 1", response.Text)

	assert.Equal(t, gobreaker.StateClosed, cbClient.State())
}

func TestCircuitBreakerCounts(t *testing.T) {
	mockClient := new(MockClient)
	mockClient.On("Complete", mock.Anything, mock.Anything).Return(&Completion{Text: "ok"}, nil)

	cbClient := NewCircuitBreakerClient(mockClient, "test-cb", DefaultCircuitBreakerConfig())

	for i := 0; i < 5; i++ {
		_, err := cbClient.Complete(context.Background(), CompletionRequest{Prompt: "test prompt"})
		assert.NoError(t, err)
	}

	counts := cbClient.Counts()
	assert.Equal(t, uint32(5), counts.Requests)
	assert.Equal(t, uint32(0), counts.TotalFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveFailures)
}
