package domain

import (
	"context"
)

// ChatMessage is a role/content pair sent to a completion provider.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is what the orchestrator hands to a provider.
type CompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`

	// User is the caller identity, forwarded for upstream abuse tracking.
	User string `json:"user,omitempty"`
	// Query is the raw customer utterance the messages were built from.
	Query string `json:"-"`
}

// Usage represents token usage reported by a provider.
type Usage struct {
	PromptTokens     int `json:"prompt"`
	CompletionTokens int `json:"completion"`
	TotalTokens      int `json:"total"`
}

// CompletionResult is a provider's answer to a CompletionRequest.
type CompletionResult struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
	// Mock is set by providers that answer without a real model behind them.
	Mock bool `json:"mock,omitempty"`
}

// Provider generates assistant replies.
type Provider interface {
	Name() string

	// Available reports whether a real model backs this provider.
	Available() bool

	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)
}
