// Package frontdoor exposes the assistant over JSON HTTP endpoints.
package frontdoor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/caviaarmode/shopping-assistant/internal/assistant"
	"github.com/caviaarmode/shopping-assistant/internal/domain"
	"github.com/caviaarmode/shopping-assistant/internal/quota"
	"github.com/caviaarmode/shopping-assistant/internal/server"
)

// SystemName is reported by the stats endpoint.
const SystemName = "E-commerce AI Shopping Assistant"

// TechnicalDifficulties is the only text a caller sees for an internal fault.
const TechnicalDifficulties = "Sorry, I'm experiencing technical difficulties. Please try again."

const maxBodyBytes = 64 << 10

// Assistant is the part of assistant.Service the handlers call.
type Assistant interface {
	Chat(ctx context.Context, req assistant.ChatRequest) (*assistant.Reply, error)
	Usage(ctx context.Context, identity string) (quota.Usage, error)
	Ceiling() int
	ProviderAvailable() bool
	Model() string
}

// Registration is one route served by the frontdoor.
type Registration struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Handler serves the chat, token usage, health and stats endpoints.
type Handler struct {
	assistant Assistant
	logger    *slog.Logger
	startTime time.Time
	now       func() time.Time
}

func NewHandler(a Assistant, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		assistant: a,
		logger:    logger,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Routes lists the handler's endpoints.
func (h *Handler) Routes() []Registration {
	return []Registration{
		{Method: http.MethodPost, Path: "/api/chat", Handler: h.HandleChat},
		{Method: http.MethodGet, Path: "/api/tokens/{session_id}", Handler: h.HandleTokens},
		{Method: http.MethodGet, Path: "/api/stats", Handler: h.HandleStats},
		{Method: http.MethodGet, Path: "/health", Handler: h.HandleHealth},
	}
}

// Register mounts Routes on r.
func (h *Handler) Register(r chi.Router) {
	for _, reg := range h.Routes() {
		r.Method(reg.Method, reg.Path, reg.Handler)
	}
}

// ChatRequest is the inbound body of POST /api/chat. Message is accepted as
// an alias for Query.
type ChatRequest struct {
	Query     string `json:"query"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// HandleChat runs one exchange.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		server.AddError(r.Context(), err)
		h.writeError(w, r, domain.ErrInvalidRequest("Invalid request").WithCode(domain.ErrorCodeInvalidBody))
		return
	}

	query := req.Query
	if query == "" {
		query = req.Message
	}

	reply, err := h.assistant.Chat(r.Context(), assistant.ChatRequest{Query: query, SessionID: req.SessionID})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	server.AddLogField(r.Context(), "session_id", reply.SessionID)
	server.AddLogField(r.Context(), "intent", string(reply.QueryType))
	server.AddLogField(r.Context(), "outcome", string(reply.Outcome))
	h.reportQuota(r.Context(), reply.SessionID)

	h.writeJSON(w, r, http.StatusOK, reply)
}

// HandleTokens reports today's quota usage for a session.
func (h *Handler) HandleTokens(w http.ResponseWriter, r *http.Request) {
	sessionID := assistant.NormalizeIdentity(chi.URLParam(r, "session_id"))

	usage, err := h.assistant.Usage(r.Context(), sessionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	server.AddLogField(r.Context(), "session_id", sessionID)
	h.writeJSON(w, r, http.StatusOK, usage)
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status          string `json:"status"`
	APIKeyLoaded    bool   `json:"api_key_loaded"`
	MaxTokensPerDay int    `json:"max_tokens_per_day"`
}

// HandleHealth is the liveness probe.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:          "healthy",
		APIKeyLoaded:    h.assistant.ProviderAvailable(),
		MaxTokensPerDay: h.assistant.Ceiling(),
	})
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	System       string `json:"system"`
	Status       string `json:"status"`
	Model        string `json:"model"`
	Timestamp    string `json:"timestamp"`
	Uptime       string `json:"uptime"`
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
}

// HandleStats reports service identity and runtime details.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, StatsResponse{
		System:       SystemName,
		Status:       "operational",
		Model:        h.assistant.Model(),
		Timestamp:    h.now().UTC().Format(time.RFC3339),
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
	})
}

// reportQuota fills the x-ratelimit-*-tokens headers. Failures only cost the headers.
func (h *Handler) reportQuota(ctx context.Context, identity string) {
	usage, err := h.assistant.Usage(ctx, identity)
	if err != nil {
		h.logger.Warn("quota lookup for headers failed",
			slog.String("session_id", identity),
			slog.String("error", err.Error()),
		)
		return
	}

	info := server.QuotaInfo{
		TokensLimit:     h.assistant.Ceiling(),
		TokensRemaining: usage.Remaining,
	}
	if day, err := time.ParseInLocation(quota.DayLayout, usage.Day, time.Local); err == nil {
		info.TokensReset = day.AddDate(0, 0, 1)
	}
	server.SetQuota(ctx, info)
}

// fail maps err to a response. Only invalid requests echo their own message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)

	if apiErr, ok := domain.AsAPIError(err); ok && apiErr.Type == domain.ErrorTypeInvalidRequest {
		h.writeError(w, r, apiErr)
		return
	}

	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	h.writeError(w, r, domain.ErrServer(TechnicalDifficulties))
}

// errorResponse keeps the flat detail field browser clients read alongside
// the typed error.
type errorResponse struct {
	Detail string           `json:"detail"`
	Error  *domain.APIError `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, apiErr *domain.APIError) {
	h.writeJSON(w, r, apiErr.HTTPStatusCode(), errorResponse{Detail: apiErr.Message, Error: apiErr})
}

// writeJSON writes v with status. Headers are already sent when encoding
// fails, so the failure (usually a client that went away) is only logged.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.DebugContext(r.Context(), "failed to write response",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()))
	}
}
