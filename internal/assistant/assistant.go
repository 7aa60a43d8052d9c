// Package assistant answers one customer query at a time: it classifies the
// query, enforces the daily token quota around the provider call, and keeps
// the session's history.
//
// An exchange ends in exactly one Outcome:
//
//	greeting        canned greeting, no provider call, no charge, persisted
//	non_ecommerce   redirect, no provider call, no charge, not persisted
//	too_long        query alone exceeds the ceiling, no provider call
//	quota_exhausted today's usage plus the query exceeds the ceiling, no provider call
//	replied         provider answered and the charge fit, persisted
//	quota_withheld  provider answered but the charge did not fit; tokens absorbed,
//	                reply withheld, only the user message persisted
//	provider_failed apology, no charge, not persisted
//	mock            no credential configured; placeholder reply, no charge, persisted
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/caviaarmode/shopping-assistant/internal/classifier"
	"github.com/caviaarmode/shopping-assistant/internal/conversation"
	"github.com/caviaarmode/shopping-assistant/internal/domain"
	"github.com/caviaarmode/shopping-assistant/internal/knowledge"
	"github.com/caviaarmode/shopping-assistant/internal/pricing"
	"github.com/caviaarmode/shopping-assistant/internal/quota"
)

const tracerName = "github.com/caviaarmode/shopping-assistant/internal/assistant"

// ContextLastIntent is the session context key holding the latest intent.
const ContextLastIntent = "last_intent"

// Outcome is the terminal state of an exchange.
type Outcome string

const (
	OutcomeGreeting       Outcome = "greeting"
	OutcomeNonEcommerce   Outcome = "non_ecommerce"
	OutcomeTooLong        Outcome = "too_long"
	OutcomeQuotaExhausted Outcome = "quota_exhausted"
	OutcomeReplied        Outcome = "replied"
	OutcomeQuotaWithheld  Outcome = "quota_withheld"
	OutcomeProviderFailed Outcome = "provider_failed"
	OutcomeMock           Outcome = "mock"
)

// ChatRequest is one inbound exchange.
type ChatRequest struct {
	Query     string
	SessionID string
}

// Reply is the response envelope.
type Reply struct {
	Response          string           `json:"response"`
	SessionID         string           `json:"session_id"`
	QueryType         domain.Intent    `json:"query_type,omitempty"`
	SuggestedProducts []domain.Product `json:"suggested_products,omitempty"`
	Metadata          map[string]any   `json:"metadata,omitempty"`

	Outcome Outcome `json:"-"`
}

// Options are the tunables of the exchange.
type Options struct {
	Model           string
	MaxTokens       int
	Temperature     float32
	HistoryLimit    int
	IncludeMetadata bool
}

// Deps are the collaborators the service orchestrates.
type Deps struct {
	Classifier *classifier.Classifier
	Catalog    *knowledge.Catalog
	Counter    domain.TokenCounter
	Ledger     quota.Ledger
	Store      conversation.Store
	Provider   domain.Provider
	Logger     *slog.Logger
}

// Service is safe for concurrent use.
type Service struct {
	classifier *classifier.Classifier
	catalog    *knowledge.Catalog
	counter    domain.TokenCounter
	ledger     quota.Ledger
	store      conversation.Store
	provider   domain.Provider
	logger     *slog.Logger
	tracer     trace.Tracer
	replies    replies
	opts       Options
	now        func() time.Time
}

// New wires a Service. Classifier and Catalog default to the built-in tables.
func New(deps Deps, opts Options) (*Service, error) {
	switch {
	case deps.Counter == nil:
		return nil, errors.New("assistant: token counter is required")
	case deps.Ledger == nil:
		return nil, errors.New("assistant: quota ledger is required")
	case deps.Store == nil:
		return nil, errors.New("assistant: conversation store is required")
	case deps.Provider == nil:
		return nil, errors.New("assistant: provider is required")
	}

	if deps.Classifier == nil {
		deps.Classifier = classifier.Default()
	}
	if deps.Catalog == nil {
		deps.Catalog = knowledge.NewCatalog("")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = conversation.DefaultHistoryLimit
	}

	return &Service{
		classifier: deps.Classifier,
		catalog:    deps.Catalog,
		counter:    deps.Counter,
		ledger:     deps.Ledger,
		store:      deps.Store,
		provider:   deps.Provider,
		logger:     deps.Logger,
		tracer:     otel.Tracer(tracerName),
		replies:    replies{siteURL: deps.Catalog.SiteURL()},
		opts:       opts,
		now:        time.Now,
	}, nil
}

// Ceiling reports the daily token allowance.
func (s *Service) Ceiling() int {
	return s.ledger.Ceiling()
}

// ProviderAvailable reports whether a real model backs the service.
func (s *Service) ProviderAvailable() bool {
	return s.provider.Available()
}

// Model is the configured model identifier.
func (s *Service) Model() string {
	return s.opts.Model
}

// Usage reports today's quota usage for identity.
func (s *Service) Usage(ctx context.Context, identity string) (quota.Usage, error) {
	return s.ledger.Usage(ctx, NormalizeIdentity(identity))
}

// NormalizeIdentity maps a blank session id to the anonymous identity.
func NormalizeIdentity(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.AnonymousIdentity
	}
	return id
}

// Chat runs one exchange. Business outcomes, including provider failure, come
// back as a Reply; an error means the request was invalid or a store failed.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*Reply, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.ErrInvalidRequest("Invalid request").WithCode(domain.ErrorCodeMissingQuery)
	}
	identity := NormalizeIdentity(req.SessionID)

	ctx, span := s.tracer.Start(ctx, "assistant.chat",
		trace.WithAttributes(attribute.String("session.id", identity)))
	defer span.End()

	intent := s.classifier.Classify(query)
	span.SetAttributes(attribute.String("assistant.intent", string(intent)))

	reply, err := s.exchange(ctx, identity, query, intent)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("assistant.outcome", string(reply.Outcome)))
	return reply, nil
}

func (s *Service) exchange(ctx context.Context, identity, query string, intent domain.Intent) (*Reply, error) {
	reply := &Reply{SessionID: identity, QueryType: intent}

	switch intent {
	case domain.IntentNonEcommerce:
		reply.Response = s.replies.nonEcommerce()
		reply.Outcome = OutcomeNonEcommerce
		return reply, nil

	case domain.IntentGreeting:
		reply.Response = s.catalog.Lookup(domain.IntentGreeting).Info
		reply.Outcome = OutcomeGreeting
		s.persist(ctx, identity, intent, query, reply.Response, nil)
		return reply, nil
	}

	// Pre-check.
	promptTokens := s.counter.Count(query)
	ceiling := s.ledger.Ceiling()
	if promptTokens > ceiling {
		reply.Response = s.replies.tooLong()
		reply.Outcome = OutcomeTooLong
		return reply, nil
	}
	usage, err := s.ledger.Usage(ctx, identity)
	if err != nil {
		s.persist(ctx, identity, intent, query, "", nil)
		return nil, fmt.Errorf("read quota usage: %w", err)
	}
	if usage.Used+promptTokens > ceiling {
		reply.Response = s.replies.quotaExceeded(ceiling)
		reply.Outcome = OutcomeQuotaExhausted
		s.persist(ctx, identity, intent, query, "", nil)
		return reply, nil
	}

	entry := s.catalog.Lookup(intent)
	completionReq, err := s.buildRequest(ctx, identity, intent, entry, query)
	if err != nil {
		return nil, err
	}

	res, err := s.provider.Complete(ctx, completionReq)
	if err != nil {
		s.logger.ErrorContext(ctx, "completion provider failed",
			slog.String("session_id", identity),
			slog.String("intent", string(intent)),
			slog.String("provider", s.provider.Name()),
			slog.String("error_type", fmt.Sprintf("%T", err)),
			slog.String("error", err.Error()),
		)
		reply.Response = s.replies.apology()
		reply.Outcome = OutcomeProviderFailed
		return reply, nil
	}

	if intent == domain.IntentProducts {
		reply.SuggestedProducts = entry.Products
	}

	if res.Mock {
		reply.Response = res.Text
		reply.Outcome = OutcomeMock
		reply.Metadata = s.metadata(res, domain.Usage{})
		s.persist(ctx, identity, intent, query, res.Text, reply.Metadata)
		return reply, nil
	}

	// Post-check: charge what was actually exchanged.
	charge := promptTokens + s.counter.Count(res.Text)
	decision, err := s.ledger.CheckAndCharge(ctx, identity, charge)
	if err != nil {
		// The reply was not paid for; keep only the question.
		s.persist(ctx, identity, intent, query, "", nil)
		return nil, fmt.Errorf("charge quota: %w", err)
	}

	if !decision.Allowed {
		// The call already happened; its cost still counts.
		if err := s.ledger.Absorb(ctx, identity, charge); err != nil {
			s.logger.ErrorContext(ctx, "failed to absorb withheld tokens",
				slog.String("session_id", identity),
				slog.Int("tokens", charge),
				slog.String("error", err.Error()))
		}
		s.logger.InfoContext(ctx, "reply withheld by daily quota",
			slog.String("session_id", identity),
			slog.Int("tokens", charge),
			slog.Int("used", decision.Total))

		reply.Response = s.replies.quotaExceeded(ceiling)
		reply.SuggestedProducts = nil
		reply.Outcome = OutcomeQuotaWithheld
		s.persist(ctx, identity, intent, query, "", nil)
		return reply, nil
	}

	reply.Response = res.Text
	reply.Outcome = OutcomeReplied
	reply.Metadata = s.metadata(res, res.Usage)
	s.persist(ctx, identity, intent, query, res.Text, reply.Metadata)
	return reply, nil
}

// buildRequest assembles system prompt, recent history and the augmented question.
func (s *Service) buildRequest(ctx context.Context, identity string, intent domain.Intent, entry knowledge.Entry, query string) (*domain.CompletionRequest, error) {
	userPrompt, err := buildUserPrompt(intent, entry, query)
	if err != nil {
		return nil, err
	}

	history, err := s.store.Recent(ctx, identity, s.opts.HistoryLimit)
	if err != nil {
		// History only enriches the prompt.
		s.logger.WarnContext(ctx, "failed to load conversation history",
			slog.String("session_id", identity),
			slog.String("error", err.Error()))
		history = nil
	}

	msgs := make([]domain.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, domain.ChatMessage{Role: domain.RoleSystem, Content: SystemPrompt})
	for _, m := range history {
		if m.Role == domain.RoleSystem || m.Content == "" {
			continue
		}
		msgs = append(msgs, domain.ChatMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, domain.ChatMessage{Role: domain.RoleUser, Content: userPrompt})

	return &domain.CompletionRequest{
		Model:       s.opts.Model,
		Messages:    msgs,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
		User:        identity,
		Query:       query,
	}, nil
}

func (s *Service) metadata(res *domain.CompletionResult, usage domain.Usage) map[string]any {
	if !s.opts.IncludeMetadata {
		return nil
	}
	model := res.Model
	if model == "" {
		model = s.opts.Model
	}
	return map[string]any{
		"model":          model,
		"tokens":         usage,
		"estimated_cost": pricing.EstimateUSD(model, usage),
		"timestamp":      s.now().UTC().Format(time.RFC3339),
	}
}

// persist appends the user message and, when non-empty, the assistant reply,
// then records the intent. Failures are logged, never returned.
func (s *Service) persist(ctx context.Context, identity string, intent domain.Intent, query, answer string, meta map[string]any) {
	now := s.now()
	msgs := []domain.Message{{
		Role:      domain.RoleUser,
		Content:   query,
		Timestamp: now,
		Metadata:  map[string]any{"intent": string(intent)},
	}}
	if answer != "" {
		m := map[string]any{"intent": string(intent)}
		for k, v := range meta {
			m[k] = v
		}
		msgs = append(msgs, domain.Message{
			Role:      domain.RoleAssistant,
			Content:   answer,
			Timestamp: now,
			Metadata:  m,
		})
	}

	_ = conversation.Record(ctx, s.store, identity, msgs...)

	if err := s.store.SetContext(context.WithoutCancel(ctx), identity, ContextLastIntent, string(intent)); err != nil {
		s.logger.WarnContext(ctx, "failed to update session context",
			slog.String("session_id", identity),
			slog.String("error", err.Error()))
	}
}
