// Package internal wires configuration, storage and services into the
// mailblog commands.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/mailblog/internal/apperr"
	"github.com/starford/mailblog/internal/blogservice"
	"github.com/starford/mailblog/internal/ingest"
	"github.com/starford/mailblog/internal/markdown"
	"github.com/starford/mailblog/internal/preview"
	"github.com/starford/mailblog/internal/publish"
	"github.com/starford/mailblog/internal/render"
	"github.com/starford/mailblog/internal/spool"
	"github.com/starford/mailblog/internal/sqlbuilder"
	"github.com/starford/mailblog/internal/storage"
	"github.com/starford/mailblog/internal/store"
)

// App holds the initialized components a command runs against.
type App struct {
	cfg    *Config
	logger *slog.Logger
	db     *store.Store
	svc    *blogservice.Service
	input  io.Reader
}

// Run initializes the application, runs fn and releases its resources.
// A failure of fn is logged with its error kind before being returned.
func Run(ctx context.Context, fn func(context.Context, *App) error, opts ...Option) error {
	app, err := New(ctx, opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := fn(ctx, app); err != nil {
		app.logger.Error("command failed",
			slog.String("kind", apperr.Kind(err)),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// New initializes the logger, the store, the output provider and the blog
// service from the given options.
func New(ctx context.Context, opts ...Option) (*App, error) {
	a := &application{}
	for _, opt := range opts {
		opt(a)
	}
	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := a.config

	// Stdout of a delivery command may be mailed back to the sender.
	w := a.logWriter
	if w == nil {
		w = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Debug("Configuration loaded",
		slog.String("dialect", cfg.Database.Dialect),
		slog.String("output_driver", cfg.Output.Driver),
		slog.String("output_path", cfg.Output.Path),
		slog.String("base_url", cfg.Site.BaseURL),
		slog.String("log_level", cfg.App.LogLevel.String()))

	dialect, err := sqlbuilder.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		return nil, err
	}
	if dialect == sqlbuilder.SQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := store.Open(ctx, dialect, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	out, err := newOutput(&cfg.Output)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init output: %w", err)
	}

	renderer, err := newRenderer(cfg.Output.Templates)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init templates: %w", err)
	}

	pub := publish.New(renderer, out, publish.Site{
		BaseURL: cfg.Site.BaseURL,
		Author:  cfg.Site.Author,
		Title:   cfg.Site.Title,
	}, logger)
	svc := blogservice.NewService(db, ingest.New(markdown.New(), logger), pub, logger)

	input := a.input
	if input == nil {
		input = os.Stdin
	}
	return &App{cfg: cfg, logger: logger, db: db, svc: svc, input: input}, nil
}

func newOutput(cfg *OutputConfig) (storage.Provider, error) {
	switch cfg.Driver {
	case OutputDriverS3:
		return storage.NewS3(cfg.S3.storage())
	default:
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
		return storage.NewFS(cfg.Path)
	}
}

func newRenderer(dir string) (*render.Templates, error) {
	if dir == "" {
		return render.New()
	}
	return render.NewFromFS(os.DirFS(dir))
}

// Close releases the database connection.
func (a *App) Close() error {
	return a.db.Close()
}

// Mail ingests the message on the configured input.
func (a *App) Mail(ctx context.Context) error {
	res, err := a.svc.ProcessMail(ctx, a.input)
	if err != nil {
		return err
	}
	a.logger.Info("Message published",
		slog.String("account", res.Account.Name),
		slog.String("subject", res.Post.Subject),
		slog.Bool("new_account", res.NewAccount))
	return nil
}

// Delete removes the account called name.
func (a *App) Delete(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: no account name given", apperr.ErrAccountNotFound)
	}
	return a.svc.DeleteAccount(ctx, name)
}

// Refresh regenerates the artifacts of the account called name.
func (a *App) Refresh(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: no account name given", apperr.ErrAccountNotFound)
	}
	return a.svc.RefreshAccount(ctx, name)
}

// Create initializes the database schema.
func (a *App) Create(ctx context.Context) error {
	if err := a.svc.InitSchema(ctx); err != nil {
		return err
	}
	a.logger.Info("Schema ready", slog.String("dialect", string(a.db.Dialect())))
	return nil
}

// Watch ingests every message dropped into the spool directory until a
// shutdown signal arrives.
func (a *App) Watch(ctx context.Context) error {
	dir := a.cfg.Spool.Path
	if dir == "" {
		return fmt.Errorf("spool path is not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	handle := func(ctx context.Context, r io.Reader) error {
		_, err := a.svc.ProcessMail(ctx, r)
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	watchCtx, cancel := context.WithCancel(gCtx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return spool.Watch(watchCtx, dir, handle, a.logger, nil)
	})
	g.Go(func() error {
		waitForShutdown(watchCtx, a.logger)
		cancel()
		return nil
	})
	return g.Wait()
}

// Serve runs the preview HTTP server over the output directory until a
// shutdown signal arrives.
func (a *App) Serve(ctx context.Context) error {
	if a.cfg.Output.Driver != OutputDriverFS {
		return fmt.Errorf("serve needs the %q output driver, have %q", OutputDriverFS, a.cfg.Output.Driver)
	}

	httpServer := &http.Server{
		Addr:              a.cfg.Preview.Address(),
		Handler:           preview.NewRouter(a.cfg.Output.Path, a.cfg.Site.BaseURL, a.cfg.Preview.Token),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Starting preview server",
			slog.String("address", httpServer.Addr),
			slog.String("base_url", a.cfg.Site.BaseURL))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		waitForShutdown(gCtx, a.logger)
		a.logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	return g.Wait()
}

// waitForShutdown blocks until SIGINT/SIGTERM or ctx is done.
func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown")
	}
}
