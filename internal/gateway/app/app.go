package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	contrib "contactdir/internal/contribution"
	"contactdir/internal/dataset"
	"contactdir/internal/gateway/config"
	"contactdir/internal/gateway/handler"
	"contactdir/internal/gateway/handler/rpc"
	"contactdir/internal/gateway/server"
	contribsvc "contactdir/internal/gateway/service/contribution"
	"contactdir/internal/githost"
	"contactdir/internal/logging"
	"contactdir/internal/search"
)

// Components are the domain services shared by the API server and the CLI.
type Components struct {
	Catalog       *dataset.Catalog
	Search        *search.Engine
	Contributions *contribsvc.Service
}

// BuildComponents loads the catalog from src and wires search and the
// contribution service on top of it.
func BuildComponents(ctx context.Context, cfg *config.Config, src dataset.Source, logger *zap.Logger) (*Components, error) {
	logger = logging.OrNop(logger)
	catalog, err := dataset.Load(ctx, src, logger.Named("dataset"))
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	engine, err := search.New(catalog.All(), search.Options{
		ExcludedIDs: cfg.Search.ExcludeIDs,
		CacheSize:   cfg.Search.CacheSize,
		Logger:      logger.Named("search"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build search index: %w", err)
	}
	timing := contrib.LiveTiming()
	if cfg.TestMode {
		timing = contrib.SimulatedTiming()
		timing.PhasePause = cfg.Sim.PhasePause
	}
	contributions := contribsvc.New(contribsvc.Config{
		TestMode: cfg.TestMode,
		Upstream: githost.Upstream{
			Owner:         cfg.Upstream.Owner,
			Repo:          cfg.Upstream.Repo,
			DefaultBranch: cfg.Upstream.DefaultBranch,
		},
		Live: githost.LiveConfig{
			BaseURL:           cfg.GitHub.APIURL,
			Timeout:           cfg.GitHub.Timeout,
			UserAgent:         cfg.GitHub.UserAgent,
			RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
			Burst:             cfg.GitHub.Burst,
		},
		Sim: githost.SimulatedConfig{
			MinDelay: cfg.Sim.MinDelay,
			MaxDelay: cfg.Sim.MaxDelay,
		},
		Timing: &timing,
	}, catalog, logger)
	return &Components{Catalog: catalog, Search: engine, Contributions: contributions}, nil
}

type App struct {
	server     *server.Server
	handler    http.Handler
	components *Components
	closers    []io.Closer
	logger     *zap.Logger
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)

	// Dependencies
	src, closer, err := OpenSource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	components, err := BuildComponents(ctx, cfg, src, logger)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	// Routing & Server
	mux := server.NewRouter(server.Handlers{
		Directory:       handler.NewDirectoryHandler(components.Catalog, components.Search),
		Contribution:    handler.NewContributionHandler(components.Contributions, logger),
		RPCDirectory:    rpc.NewDirectoryHandler(components.Search),
		RPCContribution: rpc.NewContributionHandler(components.Contributions),
	}, cfg.CORS.AllowedOrigins, logger)

	return &App{
		server:     server.New(cfg.Port, mux, logger),
		handler:    mux,
		components: components,
		closers:    []io.Closer{components.Contributions, closer},
		logger:     logger,
	}, nil
}

// Handler is the routed handler without the h2c wrapper.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Components() *Components { return a.components }

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	errs := []error{a.server.Shutdown(ctx)}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
