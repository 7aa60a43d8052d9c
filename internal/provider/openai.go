package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/caviaarmode/shopping-assistant/internal/api/openai"
	"github.com/caviaarmode/shopping-assistant/internal/domain"
)

// OpenAIName identifies the OpenAI provider.
const OpenAIName = "openai"

// OpenAIProvider calls the chat completions endpoint.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

var _ domain.Provider = (*OpenAIProvider)(nil)

// NewOpenAI creates an OpenAI-backed provider.
func NewOpenAI(cfg Config) *OpenAIProvider {
	opts := []openai.ClientOption{
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithTimeout(cfg.Timeout),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
	}
	return &OpenAIProvider{
		client: openai.NewClient(cfg.APIKey, opts...),
		model:  cfg.Model,
	}
}

func (p *OpenAIProvider) Name() string {
	return OpenAIName
}

func (p *OpenAIProvider) Available() bool {
	return true
}

func (p *OpenAIProvider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResult, error) {
	apiReq := toAPIRequest(req, p.model)

	resp, err := p.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr.ToCanonical()
		}
		return nil, err
	}

	text, ok := resp.Reply()
	if !ok {
		return nil, fmt.Errorf("%w: response %s has no choices", ErrUnavailable, resp.ID)
	}

	model := resp.Model
	if model == "" {
		model = apiReq.Model
	}
	return &domain.CompletionResult{
		Text:  text,
		Model: model,
		Usage: resp.Usage.ToDomain(),
	}, nil
}

func toAPIRequest(req *domain.CompletionRequest, defaultModel string) *openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = defaultModel
	}

	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	temp := req.Temperature
	return &openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: &temp,
		User:        req.User,
	}
}
