package runtime

import (
	"errors"
	"log/slog"
	"net"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		a.logger = logger
		return nil
	}
}

// WithProvider replaces the configured completion provider.
func WithProvider(p domain.Provider) Option {
	return func(a *App) error {
		a.provider = p
		return nil
	}
}

// WithListener serves on l instead of listening on the configured port.
func WithListener(l net.Listener) Option {
	return func(a *App) error {
		a.listener = l
		return nil
	}
}
