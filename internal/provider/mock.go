package provider

import (
	"context"
	"fmt"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
)

// MockName identifies the mock provider.
const MockName = "mock"

// MockProvider stands in when no credential is configured. It never makes a
// network call and reports zero usage.
type MockProvider struct{}

var _ domain.Provider = (*MockProvider)(nil)

// NewMock creates the mock provider.
func NewMock() *MockProvider {
	return &MockProvider{}
}

func (p *MockProvider) Name() string {
	return MockName
}

func (p *MockProvider) Available() bool {
	return false
}

func (p *MockProvider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResult, error) {
	return &domain.CompletionResult{
		Text:  MockReply(req.Query),
		Model: MockName,
		Mock:  true,
	}, nil
}

// MockReply is the placeholder text returned for query.
func MockReply(query string) string {
	return fmt.Sprintf("Mock response: I would normally process '%s' with AI, but no API key is set. Here's a placeholder reply!", query)
}
