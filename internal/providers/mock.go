package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockClient is an in-memory LLMClient for tests and dry runs. Responses
// are served from a scripted FIFO queue; when the queue is empty the
// configured Default is returned.
type MockClient struct {
	mu    sync.Mutex
	queue []mockReply

	// Default is returned when the script queue is empty.
	Default string

	// ShouldFail makes every call fail.
	ShouldFail bool
	// FailAfter fails calls once the call count exceeds it. Zero
	// disables the threshold.
	FailAfter int
	// FailType tags injected failures. Defaults to ErrorTypeService.
	FailType string

	// Latency delays each call, observing context cancellation.
	Latency time.Duration

	calls atomic.Int64
}

type mockReply struct {
	content string
	errType string
	err     error
}

// NewMockClient creates a mock provider with the given default response.
func NewMockClient(defaultResponse string) *MockClient {
	return &MockClient{Default: defaultResponse}
}

// Name returns the provider identifier.
func (m *MockClient) Name() string { return "mock" }

// Enqueue scripts the next response content, served in FIFO order.
func (m *MockClient) Enqueue(content string) {
	m.mu.Lock()
	m.queue = append(m.queue, mockReply{content: content})
	m.mu.Unlock()
}

// EnqueueError scripts a failure with the given error type tag.
func (m *MockClient) EnqueueError(errType string, err error) {
	m.mu.Lock()
	m.queue = append(m.queue, mockReply{errType: errType, err: err})
	m.mu.Unlock()
}

// Calls reports how many requests the mock has served.
func (m *MockClient) Calls() int { return int(m.calls.Load()) }

// Chat serves the next scripted response.
func (m *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	n := m.calls.Add(1)

	result := &ChatResult{
		Provider:  m.Name(),
		ModelUsed: req.Model,
		RequestID: req.RequestID,
	}
	if result.ModelUsed == "" {
		result.ModelUsed = "mock-model"
	}

	if m.Latency > 0 {
		timer := time.NewTimer(m.Latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.ExecutionTime = time.Since(start)
			result.ErrorType = ErrorTypeCancelled
			result.ErrorMessage = ctx.Err().Error()
			return result, ctx.Err()
		case <-timer.C:
		}
	}

	if err := ctx.Err(); err != nil {
		result.ExecutionTime = time.Since(start)
		result.ErrorType = ErrorTypeCancelled
		result.ErrorMessage = err.Error()
		return result, err
	}

	if m.ShouldFail || (m.FailAfter > 0 && int(n) > m.FailAfter) {
		result.ExecutionTime = time.Since(start)
		result.ErrorType = m.FailType
		if result.ErrorType == "" {
			result.ErrorType = ErrorTypeService
		}
		err := fmt.Errorf("mock provider failure (call %d)", n)
		result.ErrorMessage = err.Error()
		return result, err
	}

	reply := m.next()
	result.ExecutionTime = time.Since(start)
	result.Attempts = 1

	if reply.err != nil {
		result.ErrorType = reply.errType
		if result.ErrorType == "" {
			result.ErrorType = ErrorTypeService
		}
		result.ErrorMessage = reply.err.Error()
		return result, reply.err
	}

	result.Content = reply.content
	result.PromptTokens = estimateMockTokens(req)
	result.CompletionTokens = len(reply.content) / 4
	result.TotalTokens = result.PromptTokens + result.CompletionTokens

	if req.ResponseFormat != nil && len(req.ResponseFormat.JSONSchema) > 0 {
		parsed, pErr := ParseStructuredJSON(result.Content)
		if pErr != nil {
			result.ErrorType = ErrorTypeBadResponse
			result.ErrorMessage = pErr.Error()
			return result, fmt.Errorf("mock: %w", pErr)
		}
		if vErr := ValidateStructuredJSON(req.ResponseFormat.JSONSchema, parsed); vErr != nil {
			result.ErrorType = ErrorTypeBadResponse
			result.ErrorMessage = vErr.Error()
			return result, fmt.Errorf("mock: %w", vErr)
		}
		result.ParsedJSON = parsed
	}

	result.Success = true
	return result, nil
}

func (m *MockClient) next() mockReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return mockReply{content: m.Default}
	}
	reply := m.queue[0]
	m.queue = m.queue[1:]
	return reply
}

func estimateMockTokens(req *ChatRequest) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	return total
}
