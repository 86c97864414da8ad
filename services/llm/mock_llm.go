package llm

import (
	"context"
	"sync"
	"time"
)

// MockClient is a scripted Client for tests.
//
// Queued responses are returned in order; once exhausted, the default
// response is returned. Safe for concurrent use.
type MockClient struct {
	mu sync.Mutex

	responses       []string
	defaultResponse string

	// Err, when set, is returned by every Infer call.
	Err error

	// Delay adds artificial latency before responding, so tests can
	// exercise timeout paths.
	Delay time.Duration

	// Calls records every prompt passed to Infer.
	Calls []string
}

func NewMockClient(defaultResponse string) *MockClient {
	return &MockClient{defaultResponse: defaultResponse}
}

// Queue appends a scripted response.
func (m *MockClient) Queue(response string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, response)
	return m
}

// Infer implements the Client interface.
func (m *MockClient) Infer(ctx context.Context, prompt string, _ GenerationParams) (string, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.responses) > 0 {
		next := m.responses[0]
		m.responses = m.responses[1:]
		return next, nil
	}
	return m.defaultResponse, nil
}
