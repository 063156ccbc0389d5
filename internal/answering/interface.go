package answering

import "context"

// Service is the orchestrator's view of the answering backend, allowing for
// mocking in tests.
type Service interface {
	Ask(ctx context.Context, query string) (*Answer, error)
}

// MockService is a mock implementation of the Service interface for testing.
type MockService struct {
	AskFunc func(ctx context.Context, query string) (*Answer, error)
}

func (m *MockService) Ask(ctx context.Context, query string) (*Answer, error) {
	return m.AskFunc(ctx, query)
}
