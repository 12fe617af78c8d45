// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/notes-garden/internal/config"
	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/bissquit/notes-garden/internal/identity"
	"github.com/bissquit/notes-garden/internal/identity/jwt"
	"github.com/bissquit/notes-garden/internal/identity/password"
	identitypostgres "github.com/bissquit/notes-garden/internal/identity/postgres"
	"github.com/bissquit/notes-garden/internal/mailer"
	"github.com/bissquit/notes-garden/internal/notes"
	notespostgres "github.com/bissquit/notes-garden/internal/notes/postgres"
	"github.com/bissquit/notes-garden/internal/pkg/clock"
	"github.com/bissquit/notes-garden/internal/pkg/ctxlog"
	"github.com/bissquit/notes-garden/internal/pkg/httputil"
	"github.com/bissquit/notes-garden/internal/pkg/metrics"
	"github.com/bissquit/notes-garden/internal/pkg/postgres"
	"github.com/bissquit/notes-garden/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	mailWorker    *mailer.Worker
}

// New connects to the database and builds the HTTP servers. Nothing listens until Run.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := NewLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
		ApplicationName: "notes-garden",
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	app := &App{
		config: cfg,
		logger: logger,
		db:     db,
	}

	router, err := app.setupRouter()
	if err != nil {
		if app.mailWorker != nil {
			_ = app.mailWorker.Stop(ctx)
		}
		db.Close()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	app.metricsServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           app.metricsHandler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run serves until one server fails or Shutdown is called.
func (a *App) Run() error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting metrics server", "addr", a.metricsServer.Addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
			return
		}
		errCh <- nil
	}()

	a.logger.Info("starting server", "addr", a.server.Addr, "version", version.Version)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// Shutdown drains both servers and the mail queue, then closes the pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for name, srv := range map[string]*http.Server{"server": a.server, "metrics server": a.metricsServer} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s: %w", name, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if a.mailWorker != nil {
		if err := a.mailWorker.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop mail worker: %w", err))
		}
	}

	a.db.Close()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) metricsHandler() http.Handler {
	// The pool collector lives in its own registry so that several apps can coexist in one process.
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewPoolCollector(a.db))

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, registry},
		promhttp.HandlerOpts{},
	))
	return r
}

func (a *App) setupRouter() (*chi.Mux, error) {
	cfg := a.config
	clk := clock.System{}

	issuer, err := jwt.NewIssuer(cfg.JWT.SecretKey, clk)
	if err != nil {
		return nil, fmt.Errorf("create token issuer: %w", err)
	}

	welcome, err := a.setupMail()
	if err != nil {
		return nil, err
	}

	identityOpener := postgres.NewOpener(a.db, pgx.TxOptions{}, func(tx pgx.Tx) identity.Repository {
		return identitypostgres.NewRepository(tx)
	})
	identityService := identity.NewService(
		identityOpener,
		password.NewHasher(cfg.Password.Params()),
		issuer,
		clk,
		identity.Config{
			AccessTokenDuration: cfg.JWT.AccessTokenDuration,
			DefaultPageSize:     cfg.Notes.DefaultPageSize,
			MaxPageSize:         cfg.Notes.MaxPageSize,
		},
		welcome,
	)
	identityHandler := identity.NewHandler(identityService)

	notesOpener := postgres.NewOpener(a.db, pgx.TxOptions{}, func(tx pgx.Tx) notes.Repository {
		return notespostgres.NewRepository(tx)
	})
	notesService := notes.NewService(notesOpener, clk, notes.Config{
		Limits:          cfg.Notes.Limits(),
		DefaultPageSize: cfg.Notes.DefaultPageSize,
		MaxPageSize:     cfg.Notes.MaxPageSize,
	})
	notesHandler := notes.NewHandler(notesService)

	r := chi.NewRouter()

	// Metrics first to measure full request time; CORS before auth to answer preflights.
	r.Use(httputil.MetricsMiddleware)
	r.Use(httputil.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger, "/healthz", "/readyz"))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Route("/api/v1", func(r chi.Router) {
		identityHandler.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(identityService))

			identityHandler.RegisterProtectedRoutes(r)
			notesHandler.RegisterRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleAdmin))
				identityHandler.RegisterAdminRoutes(r)
			})
		})
	})

	return r, nil
}

// setupMail starts the background mail worker. It returns a nil handler when mail is off.
func (a *App) setupMail() (identity.UserCreatedHandler, error) {
	cfg := a.config.Mail
	if !cfg.Enabled {
		a.logger.Info("mail disabled, welcome mail will not be sent")
		return nil, nil
	}

	m, err := mailer.New(mailer.Config{
		Enabled:       cfg.Enabled,
		SMTPHost:      cfg.SMTPHost,
		SMTPPort:      cfg.SMTPPort,
		SMTPUser:      cfg.SMTPUser,
		SMTPPassword:  cfg.SMTPPassword,
		FromAddress:   cfg.FromAddress,
		StartTLS:      cfg.StartTLS,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("create mailer: %w", err)
	}

	worker := mailer.NewWorker(mailer.WorkerConfig{
		QueueSize:      cfg.QueueSize,
		NumWorkers:     cfg.Workers,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
	}, m)

	welcomer, err := mailer.NewWelcomer(worker)
	if err != nil {
		return nil, fmt.Errorf("create welcomer: %w", err)
	}

	worker.Start()
	a.mailWorker = worker
	return welcomer, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Info())
}

// NewLogger builds the process logger from config.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
