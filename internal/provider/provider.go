// Package provider holds the completion provider variants: a real OpenAI-backed
// provider and a mock used when no credential is configured.
package provider

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
)

// ErrUnavailable is returned when a provider answers with no usable completion.
var ErrUnavailable = errors.New("provider: no completion available")

// Config selects and configures the provider.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// New returns the OpenAI provider when an API key is configured and the mock otherwise.
// Either way the result is wrapped with tracing.
func New(cfg Config, logger *slog.Logger) domain.Provider {
	if logger == nil {
		logger = slog.Default()
	}

	var p domain.Provider
	if cfg.APIKey == "" {
		logger.Warn("no provider credential configured, running in mock mode")
		p = NewMock()
	} else {
		logger.Info("completion provider configured",
			slog.String("provider", OpenAIName),
			slog.String("model", cfg.Model))
		p = NewOpenAI(cfg)
	}
	return NewTracedProvider(p)
}
