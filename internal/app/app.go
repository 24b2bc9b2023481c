// Package app wires configuration, connectors, observability and the HTTP
// API into one running catalog service.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	httpapi "github.com/partcat/partcat/internal/api/http"
	"github.com/partcat/partcat/internal/catalog"
	"github.com/partcat/partcat/internal/config"
	"github.com/partcat/partcat/internal/connector"
	"github.com/partcat/partcat/internal/connector/hive"
	"github.com/partcat/partcat/internal/connector/objectstore"
	"github.com/partcat/partcat/internal/connector/sqlite"
	"github.com/partcat/partcat/internal/events"
	"github.com/partcat/partcat/internal/logging"
	"github.com/partcat/partcat/internal/observability"
	"github.com/partcat/partcat/internal/server"
	"github.com/partcat/partcat/internal/storage"
)

// eventBufferSize is the per-subscriber notification buffer.
const eventBufferSize = 256

// App owns every long-lived component of the catalog service.
type App struct {
	cfg    *config.Config
	logger *logrus.Logger
	log    *logrus.Entry

	// Shared resources
	registry    *prometheus.Registry
	pools       *observability.PoolCollector
	filterStats *observability.FilterStats
	notifier    *events.Notifier
	dispatcher  *catalog.Dispatcher
	shutdown    *server.ShutdownManager

	// Lifecycle
	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// New validates cfg and prepares the directories local catalogs write to.
// A nil logger discards logs.
func New(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		log:    logging.Component(logger, "app"),
		shutdown: server.NewShutdownManager(server.ShutdownConfig{
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			DrainTimeout:    cfg.Server.DrainTimeout,
			Logger:          logger,
		}),
	}, nil
}

// Start opens every configured catalog and registers it with the dispatcher.
// On failure everything opened so far is released again.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	if err := a.initSharedResources(); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}

	for _, cat := range a.cfg.Catalogs {
		if err := a.openCatalog(ctx, cat); err != nil {
			a.cleanup()
			return fmt.Errorf("failed to open catalog %s: %w", cat.Name, err)
		}
	}

	a.log.WithField("catalogs", a.dispatcher.Catalogs()).Info("partition catalog started")
	return nil
}

// initSharedResources builds metrics, filter statistics, the notifier and
// the dispatcher. Closers are registered in dependency order so shutdown
// releases them in reverse.
func (a *App) initSharedResources() error {
	var metrics *observability.DispatchMetrics
	if a.cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		metrics = observability.NewDispatchMetrics(a.cfg.Metrics.Namespace)
		if err := metrics.Register(a.registry); err != nil {
			return fmt.Errorf("failed to register dispatch metrics: %w", err)
		}
		a.shutdown.RegisterCloser("dispatch-metrics", server.CloserFunc(func() error {
			metrics.Unregister(a.registry)
			return nil
		}))

		a.pools = observability.NewPoolCollector(a.cfg.Metrics.Namespace)
		if err := a.registry.Register(a.pools); err != nil {
			return fmt.Errorf("failed to register pool metrics: %w", err)
		}
		a.shutdown.RegisterCloser("pool-metrics", server.CloserFunc(func() error {
			a.registry.Unregister(a.pools)
			return nil
		}))
	}

	a.filterStats = observability.NewFilterStats(a.cfg.Metrics.FilterStatsWindow)

	a.notifier = events.NewNotifier(eventBufferSize)
	a.shutdown.RegisterCloser("notifier", server.CloserFunc(func() error {
		a.notifier.Close()
		return nil
	}))

	a.dispatcher = catalog.NewDispatcher(catalog.Options{
		CallTimeout:      a.cfg.Dispatcher.CallTimeout,
		NamesConcurrency: a.cfg.Dispatcher.NamesConcurrency,
		Metrics:          metrics,
		FilterStats:      a.filterStats,
		Notifier:         a.notifier,
		Logger:           a.logger,
	})
	return nil
}

// poolReporter is implemented by connectors backed by database/sql pools.
type poolReporter interface {
	Pools() map[string]func() sql.DBStats
}

// openCatalog opens the connector of one catalog and registers it.
func (a *App) openCatalog(ctx context.Context, cat config.CatalogConfig) error {
	svc, err := a.openConnector(ctx, cat)
	if err != nil {
		return err
	}
	if c, ok := svc.(io.Closer); ok {
		a.shutdown.RegisterCloser("catalog-"+cat.Name, c)
	}

	if p, ok := svc.(poolReporter); ok && a.pools != nil {
		for name, stats := range p.Pools() {
			a.pools.Add(name, stats)
		}
	}

	return a.dispatcher.Register(cat.Name, svc)
}

func (a *App) openConnector(ctx context.Context, cat config.CatalogConfig) (connector.PartitionService, error) {
	switch cat.Type {
	case config.CatalogSQLite:
		return sqlite.Open(sqlite.Options{
			Catalog:      cat.Name,
			Path:         cat.SQLite.Path,
			ReadPoolSize: cat.SQLite.ReadPoolSize,
			Logger:       a.logger,
		})
	case config.CatalogHive:
		return hive.Open(ctx, hive.Options{
			Catalog:         cat.Name,
			Driver:          cat.Hive.Driver,
			DSN:             cat.Hive.DSN,
			MaxOpenConns:    cat.Hive.MaxOpenConns,
			MaxIdleConns:    cat.Hive.MaxIdleConns,
			ConnMaxLifetime: cat.Hive.ConnMaxLifetime,
			Logger:          a.logger,
		})
	case config.CatalogObjectStore:
		store, err := openStorage(ctx, cat.ObjectStore.Storage)
		if err != nil {
			return nil, err
		}
		return objectstore.New(store, cat.Name, a.logger), nil
	default:
		return nil, fmt.Errorf("unsupported catalog type: %s", cat.Type)
	}
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		return storage.NewLocalStorage(cfg.Path)
	case "s3":
		return storage.NewS3Storage(ctx, cfg.S3.Bucket, storage.S3Config{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.Endpoint != "",
			Prefix:       cfg.S3.Prefix,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// Dispatcher returns the federation dispatcher. Valid after Start.
func (a *App) Dispatcher() *catalog.Dispatcher {
	return a.dispatcher
}

// Notifier returns the partition change notifier. Valid after Start.
func (a *App) Notifier() *events.Notifier {
	return a.notifier
}

// FilterStats returns the filter usage statistics. Valid after Start.
func (a *App) FilterStats() *observability.FilterStats {
	return a.filterStats
}

// Gatherer returns the metrics registry, or nil when metrics are disabled.
func (a *App) Gatherer() prometheus.Gatherer {
	if a.registry == nil {
		return nil
	}
	return a.registry
}

// Handler returns the HTTP API over the dispatcher. Requests arriving after
// shutdown began are rejected.
func (a *App) Handler() http.Handler {
	return httpapi.NewRouter(httpapi.RouterOptions{
		Catalog:     a.dispatcher,
		Gatherer:    a.Gatherer(),
		FilterStats: a.filterStats,
		Logger:      a.logger,
		Middleware:  []func(http.Handler) http.Handler{server.ShutdownMiddleware(a.shutdown)},
	})
}

// Serve runs the HTTP API until SIGINT, SIGTERM or ctx cancellation, then
// shuts everything down.
func (a *App) Serve(ctx context.Context) error {
	srv := server.NewGracefulHTTPServer(&http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}, a.shutdown)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pruneFilterStats()
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- a.shutdown.ListenForSignals(ctx) }()

	a.log.WithField("addr", a.cfg.Server.Addr).Info("HTTP API listening")
	if err := srv.ListenAndServe(); err != nil {
		a.Stop(context.Background())
		return fmt.Errorf("http server failed: %w", err)
	}

	err := <-errCh
	a.wg.Wait()
	return err
}

// pruneFilterStats forgets stale filter keys until shutdown begins.
func (a *App) pruneFilterStats() {
	interval := a.cfg.Metrics.FilterStatsWindow / 4
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.filterStats.Prune()
		case <-a.shutdown.ShutdownCh():
			return
		}
	}
}

// Stop releases every resource in reverse order of acquisition.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	err := a.shutdown.Shutdown(ctx, "stop requested")
	a.log.Info("partition catalog stopped")
	return err
}

// cleanup releases whatever Start acquired before failing.
func (a *App) cleanup() {
	if err := a.shutdown.Shutdown(context.Background(), "startup failed"); err != nil {
		a.log.WithError(err).Warn("cleanup after failed start")
	}
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}
