// Package runtime assembles the assistant from configuration and manages its
// lifecycle: storage backends, the quota janitor, the product dataset watcher
// and the HTTP server.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/caviaarmode/shopping-assistant/internal/assistant"
	"github.com/caviaarmode/shopping-assistant/internal/classifier"
	"github.com/caviaarmode/shopping-assistant/internal/config"
	"github.com/caviaarmode/shopping-assistant/internal/conversation"
	"github.com/caviaarmode/shopping-assistant/internal/domain"
	"github.com/caviaarmode/shopping-assistant/internal/frontdoor"
	"github.com/caviaarmode/shopping-assistant/internal/knowledge"
	"github.com/caviaarmode/shopping-assistant/internal/provider"
	"github.com/caviaarmode/shopping-assistant/internal/quota"
	"github.com/caviaarmode/shopping-assistant/internal/server"
	"github.com/caviaarmode/shopping-assistant/internal/storage/sqldb"
	"github.com/caviaarmode/shopping-assistant/internal/tokens"
)

// App is the assembled service. Build it with New, then Start and Shutdown.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// Injected via options
	provider domain.Provider
	listener net.Listener

	db       *sqldb.DB
	ledger   quota.Ledger
	store    conversation.Store
	janitor  *quota.Janitor
	catalog  *knowledge.Catalog
	service  *assistant.Service
	server   *server.Server
	handlers []frontdoor.Registration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New wires every component from cfg. Nothing is started until Start.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}

	app := &App{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if err := app.init(); err != nil {
		app.closeResources()
		return nil, err
	}
	return app, nil
}

func (a *App) init() error {
	if a.cfg.UsesSQL() {
		db, err := sqldb.Open(sqldb.Config{Driver: a.cfg.Storage.Driver, DSN: a.cfg.Storage.DSN})
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		a.db = db
		a.logger.Info("sql storage opened", slog.String("driver", a.cfg.Storage.Driver))
	}

	ledger, err := a.newLedger()
	if err != nil {
		return fmt.Errorf("create quota ledger: %w", err)
	}
	a.ledger = ledger

	store, err := a.newStore()
	if err != nil {
		return fmt.Errorf("create conversation store: %w", err)
	}
	a.store = store

	janitor, err := quota.NewJanitor(a.ledger, a.cfg.Quota.PruneSchedule, a.logger)
	if err != nil {
		return fmt.Errorf("create quota janitor: %w", err)
	}
	a.janitor = janitor

	a.catalog = knowledge.NewCatalog(a.cfg.Site.URL)
	if path := a.cfg.Knowledge.ProductsFile; path != "" {
		products, err := knowledge.LoadProducts(path)
		if err != nil {
			return fmt.Errorf("load product dataset: %w", err)
		}
		a.catalog.SetProducts(products)
		a.logger.Info("product dataset loaded",
			slog.String("path", path),
			slog.Int("products", len(products)))
	}

	counter, err := tokens.NewCounter(a.cfg.OpenAI.Model, a.logger)
	if err != nil {
		return fmt.Errorf("create token counter: %w", err)
	}

	if a.provider == nil {
		a.provider = provider.New(provider.Config{
			APIKey:  a.cfg.OpenAI.APIKey,
			BaseURL: a.cfg.OpenAI.BaseURL,
			Model:   a.cfg.OpenAI.Model,
			Timeout: a.cfg.OpenAI.Timeout,
		}, a.logger)
	}

	a.service, err = assistant.New(assistant.Deps{
		Classifier: classifier.Default(),
		Catalog:    a.catalog,
		Counter:    counter,
		Ledger:     a.ledger,
		Store:      a.store,
		Provider:   a.provider,
		Logger:     a.logger,
	}, assistant.Options{
		Model:           a.cfg.OpenAI.Model,
		MaxTokens:       a.cfg.OpenAI.MaxTokens,
		Temperature:     a.cfg.OpenAI.Temperature,
		HistoryLimit:    a.cfg.Conversation.HistoryLimit,
		IncludeMetadata: a.cfg.Chat.IncludeMetadata,
	})
	if err != nil {
		return fmt.Errorf("create assistant: %w", err)
	}

	a.server = server.New(server.Config{
		Port:           a.cfg.Server.Port,
		RequestTimeout: a.cfg.Server.RequestTimeout,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
	}, a.logger)

	handler := frontdoor.NewHandler(a.service, a.logger)
	a.handlers = handler.Routes()
	for _, reg := range a.handlers {
		a.server.Router.Method(reg.Method, reg.Path, reg.Handler)
		a.logger.Debug("registered handler",
			slog.String("method", reg.Method),
			slog.String("path", reg.Path))
	}

	return nil
}

func (a *App) newLedger() (quota.Ledger, error) {
	opts := []quota.Option{quota.WithCeiling(a.cfg.Quota.MaxTokensPerDay)}

	switch a.cfg.Quota.Backend {
	case config.BackendSQL:
		return quota.NewSQLLedger(a.db, opts...)
	case config.BackendRedis:
		client, err := a.newRedisClient()
		if err != nil {
			return nil, err
		}
		return quota.NewRedisLedger(client, opts...), nil
	default:
		return quota.NewMemoryLedger(opts...), nil
	}
}

func (a *App) newStore() (conversation.Store, error) {
	switch a.cfg.Conversation.Backend {
	case config.BackendSQL:
		return conversation.NewSQLStore(a.db)
	case config.BackendRedis:
		client, err := a.newRedisClient()
		if err != nil {
			return nil, err
		}
		return conversation.NewRedisStore(client, conversation.WithTTL(a.cfg.Redis.TTL)), nil
	default:
		return conversation.NewMemoryStore(), nil
	}
}

// newRedisClient opens a client per backend; each backend closes its own.
func (a *App) newRedisClient() (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", a.cfg.Redis.Addr, err)
	}
	return client, nil
}

// Start begins serving and the background jobs. It returns once the listener is bound.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ctx, a.cancel = context.WithCancel(ctx)

	if a.listener == nil {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		a.listener = l
	}

	if path := a.cfg.Knowledge.ProductsFile; path != "" && a.cfg.Knowledge.Watch {
		if err := a.catalog.Watch(a.ctx, path, a.logger); err != nil {
			a.logger.Warn("product dataset watch disabled", slog.String("error", err.Error()))
		}
	}

	a.janitor.Start()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.server.Serve(a.listener); err != nil {
			a.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	a.logger.Info("assistant started",
		slog.String("addr", a.listener.Addr().String()),
		slog.String("quota_backend", a.cfg.Quota.Backend),
		slog.String("conversation_backend", a.cfg.Conversation.Backend),
		slog.Bool("provider_available", a.provider.Available()),
		slog.Int("max_tokens_per_day", a.ledger.Ceiling()))

	return nil
}

// Shutdown stops the server, then the background jobs, then closes storage.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger.Info("shutting down assistant")

	var errs []error
	if a.server != nil && a.listener != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
		}
	}
	a.wg.Wait()

	if a.cancel != nil {
		a.cancel()
	}
	if a.janitor != nil {
		a.janitor.Stop()
	}

	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("assistant shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close conversation store: %w", err))
		}
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close quota ledger: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Handler is the routed HTTP handler with the full middleware chain.
func (a *App) Handler() http.Handler {
	return a.server.Router
}

// Addr is the bound listener address, or nil before Start.
func (a *App) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Service exposes the assembled assistant.
func (a *App) Service() *assistant.Service {
	return a.service
}
