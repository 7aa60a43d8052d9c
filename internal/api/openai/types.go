// Package openai holds the wire types and a small HTTP client for the
// chat completions endpoint.
package openai

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
)

type ChatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []ChatCompletionMessage `json:"messages"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
	Temperature *float32                `json:"temperature,omitempty"`
	User        string                  `json:"user,omitempty"`
}

type ChatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Reply returns the first choice's content. ok is false when the upstream
// sent no choices at all.
func (r *ChatCompletionResponse) Reply() (text string, ok bool) {
	if len(r.Choices) == 0 {
		return "", false
	}
	return r.Choices[0].Message.Content, true
}

type Choice struct {
	Index        int                   `json:"index"`
	Message      ChatCompletionMessage `json:"message"`
	FinishReason string                `json:"finish_reason"`
}

// Usage is the upstream's own token accounting. The assistant meters with
// its local tokenizer; this is only logged.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u Usage) ToDomain() domain.Usage {
	return domain.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// APIError is an upstream failure. Message is never shown to shoppers.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`

	StatusCode int `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// ToCanonical classifies the failure and hides the upstream text behind a
// generic message; the original stays reachable through errors.Is/As.
func (e *APIError) ToCanonical() *domain.APIError {
	return domain.NewAPIError(classify(e), "upstream completion failed").WithCause(e)
}

func classify(e *APIError) domain.ErrorType {
	switch e.Code {
	case "rate_limit_exceeded", "insufficient_quota":
		return domain.ErrorTypeRateLimit
	case "model_not_found":
		return domain.ErrorTypeNotFound
	}

	switch e.Type {
	case "invalid_request_error":
		return domain.ErrorTypeInvalidRequest
	case "rate_limit_error":
		return domain.ErrorTypeRateLimit
	case "service_unavailable":
		return domain.ErrorTypeOverloaded
	}

	switch e.StatusCode {
	case http.StatusNotFound:
		return domain.ErrorTypeNotFound
	case http.StatusTooManyRequests:
		return domain.ErrorTypeRateLimit
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return domain.ErrorTypeOverloaded
	}
	return domain.ErrorTypeServer
}

// errorFromBody decodes an {"error": {...}} envelope. Bodies that are not
// in that shape (proxy HTML, plain text) become the message verbatim.
func errorFromBody(status int, body []byte) *APIError {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.StatusCode = status
		return envelope.Error
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Message: msg, Type: "http_error", StatusCode: status}
}
