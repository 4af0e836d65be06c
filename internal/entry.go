// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/jeebs/internal/api"
	"github.com/starford/jeebs/internal/autonomy"
	"github.com/starford/jeebs/internal/mcpserver"
	"github.com/starford/jeebs/internal/proposal"
	"github.com/starford/jeebs/internal/signals"
	"github.com/starford/jeebs/internal/sse"
	"github.com/starford/jeebs/internal/store"
	"github.com/starford/jeebs/internal/watcher"
	"github.com/starford/jeebs/internal/workspace"
)

// runtime is the wired set of components shared by every entry point.
type runtime struct {
	cfg     *Config
	logger  *slog.Logger
	db      *store.DB
	svc     *proposal.Service
	thinker *autonomy.Thinker
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// bootstrap opens the database and wires the evolution services. events may
// be nil. The caller closes rt.db.
func (a *application) bootstrap(events proposal.Publisher) (*runtime, error) {
	cfg := a.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_root", cfg.Workspace.Root),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.Bool("autonomy_enabled", cfg.Evolution.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Workspace.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	fs, err := workspace.NewFS(cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("init workspace: %w", err)
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	props := proposal.NewStore(db, logger)
	svc := proposal.NewService(proposal.ServiceDeps{
		Store:         props,
		Notifications: proposal.NewNotifications(db, cfg.Evolution.NotificationCap, logger),
		Applier:       workspace.NewApplier(fs, cfg.Evolution.Policy(), logger),
		Journal:       db,
		Events:        events,
		Logger:        logger,
	})
	thinker := autonomy.New(autonomy.Deps{
		Settings:  cfg.Evolution.Settings(),
		Collector: signals.NewCollector(db, props, logger),
		Proposals: svc,
		KV:        db,
		Journal:   db,
		Logger:    logger,
	})
	return &runtime{cfg: cfg, logger: logger, db: db, svc: svc, thinker: thinker}, nil
}

// Run starts the HTTP server, the think-cycle scheduler and the workspace
// watcher, and blocks until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	rt, err := app.bootstrap(broker)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	cfg, logger := rt.cfg, rt.logger

	apiRouter := api.NewRouter(rt.svc, rt.thinker, cfg.Auth.API(), broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := rt.db.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Closing the broker ends open event streams so Shutdown does not wait on them.
	httpServer.RegisterOnShutdown(broker.Close)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Think-cycle scheduler.
	g.Go(func() error {
		return rt.thinker.Run(gCtx)
	})

	// Workspace watcher with SSE callback.
	if cfg.Evolution.WatchWorkspace {
		g.Go(func() error {
			err := watcher.Watch(gCtx, cfg.Workspace.Root, cfg.Evolution.Policy(), logger, broker.PublishWorkspaceChange)
			if err != nil {
				logger.Warn("workspace watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the scheduler and watcher stop with the server.
var errShutdown = errors.New("shutdown")

// Think runs a single think-cycle and returns its outcome. force skips the
// cooldown.
func Think(ctx context.Context, force bool, opts ...Option) (autonomy.CycleResult, error) {
	app, err := newApplication(opts)
	if err != nil {
		return autonomy.CycleResult{}, err
	}
	rt, err := app.bootstrap(nil)
	if err != nil {
		return autonomy.CycleResult{}, err
	}
	defer rt.db.Close()

	res, err := rt.thinker.Cycle(ctx, force)
	if err != nil {
		return res, fmt.Errorf("think-cycle: %w", err)
	}
	rt.logger.Info("think-cycle finished",
		slog.Bool("created_update", res.CreatedUpdate),
		slog.Bool("duplicate", res.Duplicate),
		slog.String("reason", res.Reason))
	return res, nil
}

// ServeMCP serves the MCP tools on stdin/stdout until the client disconnects.
// Logs go to stderr unless another output was configured.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	rt, err := app.bootstrap(nil)
	if err != nil {
		return err
	}
	defer rt.db.Close()

	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.svc, rt.thinker).ServeStdio(ctx)
}
