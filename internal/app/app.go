// Package app wires all reverie subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects the
// history store, summarisation service, background sweeper, and HTTP server;
// Run blocks until the context is cancelled or the server fails; Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/reverie/internal/api"
	"github.com/MrWong99/reverie/internal/config"
	"github.com/MrWong99/reverie/internal/health"
	"github.com/MrWong99/reverie/internal/observe"
	"github.com/MrWong99/reverie/internal/summary"
	"github.com/MrWong99/reverie/pkg/chat"
	"github.com/MrWong99/reverie/pkg/history"
	"github.com/MrWong99/reverie/pkg/history/kvjson"
	"github.com/MrWong99/reverie/pkg/history/postgres"
	"github.com/MrWong99/reverie/pkg/provider/embeddings"
	"github.com/MrWong99/reverie/pkg/provider/llm"
)

// Providers holds one interface value per provider slot. Nil Embeddings means
// summary search is disabled. Populated by main.go via the config registry.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes for the reverie service.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	store   *summary.StoreGuard
	service *summary.Service
	sweeper *summary.Sweeper
	server  *http.Server

	// rawStore is the injected or constructed backing store, pre-guard.
	rawStore history.Store

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a history store instead of creating one from config.
func WithStore(s history.Store) Option {
	return func(a *App) { a.rawStore = s }
}

// WithMetrics injects a metrics sink instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go, populated via the config registry.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if a.providers.Embeddings != nil {
		a.providers.Embeddings = instrumentedEmbeddings{
			inner:   a.providers.Embeddings,
			metrics: a.metrics,
		}
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.initService()
	a.initSweeper()
	a.initServer()

	return a, nil
}

// initStore builds the configured history store and wraps it in the guard.
func (a *App) initStore(ctx context.Context) error {
	defaults := chat.DefaultSettings()
	if t := a.cfg.Summary.DefaultThreshold; t > 0 {
		defaults.SummaryThreshold = t
	}
	if l := a.cfg.Summary.DefaultLength; l > 0 {
		defaults.SummaryLength = l
	}

	if a.rawStore == nil {
		switch a.cfg.Storage.Backend {
		case config.BackendPostgres:
			store, err := postgres.NewStore(ctx,
				a.cfg.Storage.PostgresDSN,
				a.cfg.Storage.EmbeddingDimensions,
				a.providers.Embeddings,
				postgres.WithDefaultSettings(defaults),
			)
			if err != nil {
				return err
			}
			a.rawStore = store
			a.closers = append(a.closers, func() error {
				store.Close()
				return nil
			})

		case config.BackendFile, "":
			path := a.cfg.Storage.Path
			if path == "" {
				path = "./data"
			}
			store, err := kvjson.New(path, kvjson.WithDefaultSettings(defaults))
			if err != nil {
				return err
			}
			a.rawStore = store

		default:
			return fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
		}
	}

	a.store = summary.NewStoreGuard(a.rawStore)
	return nil
}

// initService builds the summarisation service with config-level defaults.
func (a *App) initService() {
	opts := []summary.Option{
		summary.WithMetrics(a.metrics),
	}
	if len(a.cfg.Summary.PromptTemplate) > 0 {
		opts = append(opts, summary.WithTemplate(a.cfg.Summary.PromptTemplate))
	}
	if a.cfg.Summary.Bounds != nil {
		opts = append(opts, summary.WithBounds(a.cfg.Summary.Bounds))
	}
	a.service = summary.NewService(a.store, a.providers.LLM, opts...)
}

// initSweeper builds the background sweeper unless disabled by config.
func (a *App) initSweeper() {
	secs := a.cfg.Summary.SweepIntervalSeconds
	if secs < 0 {
		slog.Info("background sweeper disabled by config")
		return
	}
	a.sweeper = summary.NewSweeper(summary.SweeperConfig{
		Service:  a.service,
		Store:    a.store,
		Interval: time.Duration(secs) * time.Second,
		Metrics:  a.metrics,
	})
}

// initServer builds the HTTP server with health checks and the API routes.
func (a *App) initServer() {
	h := health.New(
		health.FromFlag("history", a.store.IsDegraded, "history store degraded"),
	)
	srv := api.NewServer(a.store, a.service, h, a.metrics)

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// instrumentedEmbeddings records call latency around an embeddings provider.
type instrumentedEmbeddings struct {
	inner   embeddings.Provider
	metrics *observe.Metrics
}

func (e instrumentedEmbeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	v, err := e.inner.Embed(ctx, text)
	e.metrics.EmbeddingDuration.Record(ctx, time.Since(start).Seconds())
	return v, err
}

func (e instrumentedEmbeddings) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	v, err := e.inner.EmbedBatch(ctx, texts)
	e.metrics.EmbeddingDuration.Record(ctx, time.Since(start).Seconds())
	return v, err
}

func (e instrumentedEmbeddings) Dimensions() int { return e.inner.Dimensions() }

func (e instrumentedEmbeddings) ModelID() string { return e.inner.ModelID() }

// Service exposes the summarisation service for hot-reload wiring in main.
func (a *App) Service() *summary.Service {
	return a.service
}

// Store exposes the guarded history store.
func (a *App) Store() *summary.StoreGuard {
	return a.store
}

// ApplyReload applies hot-reloadable config changes to the running service.
// Changes that need a restart (storage backend, providers, listen address)
// are ignored with a log line.
func (a *App) ApplyReload(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Any() {
		return
	}
	if d.PromptTemplateChanged {
		a.service.SetTemplate(new.Summary.PromptTemplate)
		slog.Info("applied new summarisation prompt template")
	}
	if d.BoundsChanged {
		a.service.SetBounds(new.Summary.Bounds)
		slog.Info("applied new selection bounds")
	}
	if d.SweepIntervalChanged {
		slog.Warn("sweep interval changed; restart required to apply")
	}
}

// Run starts the sweeper and the HTTP server, then blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	if a.sweeper != nil {
		a.sweeper.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			slog.Info("listening with TLS", "addr", a.server.Addr)
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			slog.Info("listening", "addr", a.server.Addr)
			err = a.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: http server: %w", err)
	}
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		if a.sweeper != nil {
			a.sweeper.Stop()
		}
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
