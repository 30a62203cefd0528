package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/plughost/pkg/api"
	"github.com/platinummonkey/plughost/pkg/archive"
	"github.com/platinummonkey/plughost/pkg/catalog"
	"github.com/platinummonkey/plughost/pkg/config"
	"github.com/platinummonkey/plughost/pkg/observability"
	"github.com/platinummonkey/plughost/pkg/registry"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the plugin host",
		Long: `Serve loads the plugin directory, mounts every plugin under /plugins/{id}
and exposes the /plugin_store API. Health checks and prometheus metrics are
served on a separate port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

// catalogDeps is the opened catalog store plus the connections health checks ping
type catalogDeps struct {
	store catalog.Store
	db    *sql.DB
	redis *redis.Client
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), nil)
	shutdown := observability.NewShutdownManager(log, cfg.Server.ShutdownTimeout)

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, log)
	})

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var (
		sinks       observability.MultiMetrics
		httpMetrics *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		httpMetrics = observability.NewMetrics(promRegistry)
		sinks = append(sinks, httpMetrics)
	}
	if providers != nil {
		otelMetrics, err := observability.NewOTelMetrics()
		if err != nil {
			return fmt.Errorf("failed to create OpenTelemetry instruments: %w", err)
		}
		sinks = append(sinks, otelMetrics)
	}

	deps, err := openCatalog(ctx, cfg.Catalog, log)
	if err != nil {
		shutdown.Shutdown(context.Background())
		return err
	}
	if deps.db != nil {
		shutdown.Register("catalog-database", func(context.Context) error { return deps.db.Close() })
	}
	if deps.redis != nil {
		shutdown.Register("catalog-cache", func(context.Context) error { return deps.redis.Close() })
	}

	backup, err := openBackup(ctx, cfg.Backup)
	if err != nil {
		shutdown.Shutdown(context.Background())
		return err
	}

	scanPolicy, _ := cfg.ScanPolicy()
	reg, err := registry.New(registry.Config{
		Root:              cfg.Plugins.Dir,
		Development:       cfg.Plugins.Development,
		ScanPolicy:        scanPolicy,
		CatalogTimeout:    cfg.Catalog.Timeout,
		SyncRetries:       cfg.Catalog.SyncRetries,
		WatchDebounce:     cfg.Plugins.WatchDebounce,
		ReconcileSchedule: cfg.Plugins.ReconcileSchedule,
		Backup:            backup,
		OnSyncError: func(id string, op catalog.Operation, err error) {
			log.WithFields(logrus.Fields{"plugin_id": id, "operation": op}).WithError(err).
				Error("catalog out of sync with live plugins")
		},
		Logger:  log,
		Metrics: sinks,
	}, deps.store)
	if err != nil {
		shutdown.Shutdown(context.Background())
		return err
	}

	store, err := storeRegistrar(ctx, reg, cfg.Server.MaxUploadBytes, log)
	if err != nil {
		shutdown.Shutdown(context.Background())
		return err
	}
	shutdown.Register("registry", func(context.Context) error { return reg.Close() })

	var routeMiddleware []mux.MiddlewareFunc
	if httpMetrics != nil {
		routeMiddleware = append(routeMiddleware, observability.HTTPMetricsMiddleware(httpMetrics))
	}
	var handler http.Handler = api.NewServer(log, []api.RouteRegistrar{store}, routeMiddleware...)
	if providers != nil {
		handler = otelhttp.NewHandler(handler, "plughost")
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	health := observability.HealthOptions{
		DB:         deps.db,
		Redis:      deps.redis,
		PluginRoot: reg.Root(),
		Timeout:    cfg.Catalog.Timeout,
	}
	if cfg.Observability.MetricsEnabled {
		health.Registerer = promRegistry
		observability.RegisterMetricsEndpoint(healthMux, promRegistry)
	}
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthHandler(health))
	healthServer := &http.Server{
		Addr:        cfg.Server.HealthAddr(),
		Handler:     healthMux,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	// Servers stop before the registry and the stores they use
	shutdown.Register("health-server", healthServer.Shutdown)
	shutdown.Register("http-server", server.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Plughost listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Infof("Health and metrics listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down plughost")
		return shutdown.Shutdown(context.Background())
	})

	return g.Wait()
}

// openCatalog opens the configured backend and wraps it with the cache
func openCatalog(ctx context.Context, cfg config.CatalogConfig, log *logrus.Logger) (*catalogDeps, error) {
	deps := &catalogDeps{}

	switch strings.ToLower(cfg.Backend) {
	case config.BackendSQLite, config.BackendPostgres:
		dialect := catalog.DialectSQLite
		if strings.EqualFold(cfg.Backend, config.BackendPostgres) {
			dialect = catalog.DialectPostgres
		}
		store, err := catalog.OpenSQLStore(ctx, dialect, cfg.DSN)
		if err != nil {
			return nil, err
		}
		deps.store = store
		deps.db = store.DB()
	default:
		deps.store = catalog.NewMemoryStore()
	}

	if cfg.CacheSize > 0 {
		if cfg.RedisURL != "" {
			client, err := catalog.NewRedisClient(ctx, cfg.RedisURL)
			if err != nil {
				if deps.db != nil {
					deps.db.Close()
				}
				return nil, err
			}
			deps.redis = client
		}
		deps.store = catalog.NewCachedStore(deps.store, catalog.CacheConfig{
			Size:   cfg.CacheSize,
			TTL:    cfg.CacheTTL,
			Redis:  deps.redis,
			Logger: log,
		})
	}

	log.WithFields(logrus.Fields{
		"backend": cfg.Backend,
		"cache":   cfg.CacheSize > 0,
		"redis":   deps.redis != nil,
	}).Info("catalog store ready")
	return deps, nil
}

// openBackup returns nil when no backup target is configured
func openBackup(ctx context.Context, cfg config.BackupConfig) (archive.Backup, error) {
	switch {
	case cfg.Dir != "":
		return archive.NewFilesystemBackup(cfg.Dir)
	case cfg.S3Bucket != "":
		return archive.NewS3Backup(ctx, archive.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Prefix:       cfg.S3Prefix,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
	default:
		return nil, nil
	}
}

// storeRegistrar starts the registry. A missing plugin root disables the
// store routes instead of failing the process.
func storeRegistrar(ctx context.Context, reg *registry.Registry, maxUpload int64, log *logrus.Logger) (api.RouteRegistrar, error) {
	if err := reg.Start(ctx); err != nil {
		if !errors.Is(err, registry.ErrRootUnavailable) {
			return nil, err
		}
		log.WithError(err).Error("plugin store disabled")
		return api.NewDisabledHandlers(err), nil
	}
	return api.NewStoreHandlers(reg, api.StoreOptions{
		MaxUploadBytes: maxUpload,
		Logger:         log,
	}), nil
}
