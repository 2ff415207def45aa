// Package server builds the harvester from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/api"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/config"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/crawler"
	collyfetcher "github.com/JakeFAU/clinicaltrials-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/registry"
	localstorage "github.com/JakeFAU/clinicaltrials-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/clinicaltrials-harvester/internal/storage/memory"
	pgstore "github.com/JakeFAU/clinicaltrials-harvester/internal/storage/postgres"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/transform"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/worker"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// App contains the harvester's dependencies for one run.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	worker   *worker.Worker
	crawler  *crawler.Crawler
	sink     worker.Sink
	pool     *pgxpool.Pool
	runStore *pgstore.RunStore
	httpSrv  *http.Server
	listener net.Listener
}

// Build creates the application's dependencies. The logger is owned by the
// caller and is not synced by Close.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building harvester",
		zap.String("base_url", cfg.Registry.BaseURL),
		zap.String("termination", cfg.Crawl.Termination),
		zap.String("absence_policy", string(cfg.AbsencePolicy())),
		zap.String("output", cfg.Output.Kind),
	)

	termination, err := cfg.Termination()
	if err != nil {
		return nil, err
	}
	fetcher := collyfetcher.New(collyfetcher.Config{
		BaseURL:           cfg.Registry.BaseURL,
		UserAgent:         cfg.Registry.UserAgent,
		Charset:           cfg.Registry.Charset,
		Timeout:           cfg.RequestTimeout(),
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
	})
	seq := registry.NewSequencer(cfg.Registry.IDPrefix, cfg.Registry.IDWidth, cfg.Registry.StartCounter)
	retry := crawler.NewExponentialRetryPolicy(cfg.HTTP.MaxRetries+1, cfg.BackoffInitial(), cfg.BackoffMax())
	app.crawler = crawler.New(seq, fetcher, retry, crawler.Config{
		Termination:    termination,
		Absence:        cfg.AbsencePolicy(),
		Concurrency:    cfg.Crawl.Concurrency,
		RequestTimeout: cfg.RequestTimeout(),
	}, logger.Named("crawler"))

	if err := app.setupDatabase(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	sink, err := app.setupSink(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	app.sink = sink

	var opts []worker.Option
	if app.runStore != nil {
		opts = append(opts, worker.WithRecorder(app.runStore))
	}
	app.worker = worker.New(app.crawler, transform.NewAssembler(logger.Named("transform")), sink, logger.Named("worker"), opts...)

	if cfg.Server.Addr != "" {
		var apiOpts []api.Option
		apiOpts = append(apiOpts, api.WithRequestTimeout(cfg.Server.ServerTimeout()))
		if app.runStore != nil {
			apiOpts = append(apiOpts, api.WithRunRepository(app.runStore))
		}
		apiServer := api.NewServer(app.worker, logger.Named("api"), apiOpts...)
		app.httpSrv = &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: readHeaderTimeout,
		}
	}
	return app, nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	needPool := a.cfg.Output.Kind == config.OutputPostgres || a.cfg.DB.RecordRuns
	if !needPool {
		return nil
	}
	pool, err := pgstore.Connect(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.ConnLifetime(),
	})
	if err != nil {
		return fmt.Errorf("postgres init failed: %w", err)
	}
	a.pool = pool

	if a.cfg.DB.RecordRuns {
		runStore, err := pgstore.NewRunStoreWithPool(pool, a.cfg.DB.RunTable)
		if err != nil {
			return fmt.Errorf("run store init failed: %w", err)
		}
		if err := runStore.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("run store schema: %w", err)
		}
		a.runStore = runStore
	}
	return nil
}

func (a *App) setupSink(ctx context.Context) (worker.Sink, error) {
	switch a.cfg.Output.Kind {
	case config.OutputLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Output.Dir})
		if err != nil {
			return nil, fmt.Errorf("local store init failed: %w", err)
		}
		a.logger.Info("writing documents to local directory", zap.String("dir", a.cfg.Output.Dir))
		return store, nil
	case config.OutputPostgres:
		store, err := pgstore.NewWithPool(a.pool, a.cfg.DB.Table)
		if err != nil {
			return nil, fmt.Errorf("document store init failed: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("document store schema: %w", err)
		}
		a.logger.Info("writing documents to postgres")
		return store, nil
	default:
		a.logger.Info("keeping documents in memory")
		return memorystorage.NewDocumentStore(), nil
	}
}

// Worker exposes the run driver, mainly for status reporting.
func (a *App) Worker() *worker.Worker {
	return a.worker
}

// Sink returns the configured document sink.
func (a *App) Sink() worker.Sink {
	return a.sink
}

// Run harvests until the crawl is exhausted or a signal arrives. The status
// server, when configured, lives exactly as long as the run.
func (a *App) Run(ctx context.Context) (worker.Snapshot, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.httpSrv != nil {
		if err := a.startHTTP(stop); err != nil {
			return a.worker.Snapshot(), err
		}
	}

	snap, runErr := a.worker.Run(ctx)

	if a.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
	}
	return snap, runErr
}

func (a *App) startHTTP(stop context.CancelFunc) error {
	ln, err := net.Listen("tcp", a.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.httpSrv.Addr, err)
	}
	a.listener = ln
	go func() {
		a.logger.Info("status server started", zap.String("addr", ln.Addr().String()))
		if err := a.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("status server error", zap.Error(err))
			stop()
		}
	}()
	return nil
}

// StatusAddr returns the bound status server address, or "" when none runs.
func (a *App) StatusAddr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Close releases infrastructure. It is safe to call more than once.
func (a *App) Close() {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
