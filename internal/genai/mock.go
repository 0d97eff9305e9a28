package genai

import (
	"context"
	"sync"
)

// MockReply is the canned reply returned by MockGenerator.
const MockReply = "Thank you for sharing that with me. I'm here to listen. Would you like to talk about what's been on your mind?"

// MockGenerator is a deterministic Generator for local runs and tests.
type MockGenerator struct {
	Reply string
	Err   error

	mu       sync.Mutex
	requests []Request
}

// NewMockGenerator returns a generator that always answers with MockReply.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{Reply: MockReply}
}

// Generate records the request and returns the configured reply or error.
func (m *MockGenerator) Generate(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Reply, nil
}

// Requests returns the requests seen so far.
func (m *MockGenerator) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}
