package provider

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
)

const tracerName = "github.com/caviaarmode/shopping-assistant/internal/provider"

// TracedProvider wraps a provider and records a span per completion.
type TracedProvider struct {
	inner  domain.Provider
	tracer trace.Tracer
}

// NewTracedProvider creates a new TracedProvider
func NewTracedProvider(inner domain.Provider) *TracedProvider {
	return &TracedProvider{
		inner:  inner,
		tracer: otel.Tracer(tracerName),
	}
}

// Unwrap returns the wrapped provider.
func (p *TracedProvider) Unwrap() domain.Provider {
	return p.inner
}

func (p *TracedProvider) Name() string {
	return p.inner.Name()
}

func (p *TracedProvider) Available() bool {
	return p.inner.Available()
}

func (p *TracedProvider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResult, error) {
	ctx, span := p.tracer.Start(ctx, "provider.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider.name", p.inner.Name()),
			attribute.String("llm.model", req.Model),
			attribute.Int("llm.max_tokens", req.MaxTokens),
			attribute.Int("llm.messages", len(req.Messages)),
		))
	defer span.End()

	res, err := p.inner.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("llm.response_model", res.Model),
		attribute.Int("llm.usage.prompt_tokens", res.Usage.PromptTokens),
		attribute.Int("llm.usage.completion_tokens", res.Usage.CompletionTokens),
		attribute.Bool("llm.mock", res.Mock),
	)
	return res, nil
}
