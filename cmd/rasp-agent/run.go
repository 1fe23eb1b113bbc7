package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/triage-ai/rasp-agent/internal/api"
	"github.com/triage-ai/rasp-agent/internal/auth"
	"github.com/triage-ai/rasp-agent/internal/chread"
	"github.com/triage-ai/rasp-agent/internal/config"
	"github.com/triage-ai/rasp-agent/internal/engine"
	"github.com/triage-ai/rasp-agent/internal/loader"
	"github.com/triage-ai/rasp-agent/internal/module"
	"github.com/triage-ai/rasp-agent/internal/server"
	"github.com/triage-ai/rasp-agent/internal/storage"
	"github.com/triage-ai/rasp-agent/internal/store"
	"github.com/triage-ai/rasp-agent/internal/watch"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent: load modules, serve the control API and watch for reconfiguration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger := mustBuildLogger(cfg.Log.Level)
		defer logger.Sync() //nolint:errcheck // best-effort flush

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, logger)
	},
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting rasp agent",
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("grpc_addr", cfg.GRPC.Addr),
		zap.String("metrics_addr", cfg.Metrics.Addr),
		zap.String("modules_file", cfg.Modules.File),
		zap.Strings("modules_disabled", cfg.Modules.Disabled),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// Storage: ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	var reader api.AttackReader
	if cfg.ClickHouse.DSN != "" {
		chWriter, err := storage.NewClickHouseWriter(cfg.ClickHouse.DSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			if err := chWriter.Instrument(reg); err != nil {
				logger.Warn("clickhouse writer metrics not registered", zap.Error(err))
			}
			logger.Info("clickhouse writer connected")
		}

		chReader, err := chread.NewReader(cfg.ClickHouse.DSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			reader = chReader
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no clickhouse.dsn set, using log writer")
	}
	defer writer.Close()

	// Postgres: optional persisted module overrides
	var pgStore *store.Store
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("pgx", cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pgStore = store.NewStore(db)
		if err := pgStore.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("postgres connected")
	}

	// Modules
	registry := engine.NewRegistry()
	core := module.NewCoreLoader(storage.NewSink(writer, logger), registry, logger)
	manager := module.NewManager(logger, cfg.Modules.Disabled...)
	business := &loader.BusinessHolder{}
	for _, b := range bundles() {
		manager.Add(module.NewAlgorithmModule(b, core, business, logger))
	}

	health := server.NewHealthServer(logger)
	manager.SetObserver(health.SetModuleStatus)

	source := config.Source{File: cfg.Modules.File}
	if pgStore != nil {
		source.Store = store.NewGuard(pgStore, logger)
	}
	reload := newReloader(source, manager, logger)
	if err := reload(ctx, "startup"); err != nil {
		logger.Error("initial module configuration incomplete", zap.Error(err))
	}

	// Control API
	authenticator, err := buildAuthenticator(cfg.HTTP, logger)
	if err != nil {
		return err
	}
	deps := &api.Dependencies{
		Pipeline: engine.NewPipeline(registry, metrics, logger),
		Registry: registry,
		Modules:  manager,
		Auth:     authenticator,
		Reader:   reader,
		Reload:   reload,
		Logger:   logger,

		AllowedOrigin: cfg.HTTP.CORSOrigin,
	}
	if pgStore != nil {
		deps.Store = pgStore
	}
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return serveHTTP(gctx, httpServer, logger) })
	g.Go(func() error { return serveHTTP(gctx, metricsServer, logger) })
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return err
		}
		return health.Serve(gctx, lis)
	})

	if cfg.Modules.File != "" {
		fw, err := watch.NewFileWatcher(cfg.Modules.File, cfg.Modules.Debounce, reload, logger)
		if err != nil {
			logger.Warn("module file watch disabled", zap.Error(err))
		} else {
			g.Go(func() error { return fw.Run(gctx) })
		}
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		listener := watch.NewRedisListener(rdb, cfg.Redis.Channel, reload, logger)
		g.Go(func() error { return listener.Run(gctx) })
	}

	err = g.Wait()

	unloadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if uerr := manager.UnloadAll(unloadCtx); uerr != nil {
		logger.Error("module unload incomplete", zap.Error(uerr))
	}
	logger.Info("rasp agent stopped")
	return err
}

// moduleSource yields the effective per-module configuration; config.Source
// implements it.
type moduleSource interface {
	Load(ctx context.Context) (map[string]map[string]string, error)
}

// newReloader returns the reload entry point shared by startup, the file
// watcher, the redis listener and the control API. A partial load is still
// applied. When nothing can be read the active modules are left alone, except
// before the first apply, where every module starts from its defaults.
func newReloader(source moduleSource, manager *module.Manager, logger *zap.Logger) watch.ReloadFunc {
	var applied atomic.Bool
	return func(ctx context.Context, from string) error {
		logger.Info("applying module configuration", zap.String("source", from))
		cfgs, err := source.Load(ctx)
		if err != nil {
			logger.Warn("module configuration incomplete", zap.String("source", from), zap.Error(err))
		}
		if cfgs == nil && applied.Load() {
			return err
		}
		applied.Store(true)
		return errors.Join(err, manager.Apply(ctx, cfgs))
	}
}

// buildAuthenticator accepts the static token, control-plane JWTs, or
// both. With neither configured every request is let through.
func buildAuthenticator(cfg config.HTTPConfig, logger *zap.Logger) (auth.Authenticator, error) {
	var auths []auth.Authenticator
	if cfg.TokenHash != "" {
		ta, err := auth.NewTokenAuthenticator(cfg.TokenHash, cfg.CacheTTL, logger)
		if err != nil {
			return nil, err
		}
		auths = append(auths, ta)
	}
	if cfg.JWTPublicKey != "" {
		key, err := auth.LoadRSAPublicKey(cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
		auths = append(auths, auth.NewJWTAuthenticator(key))
	}
	switch len(auths) {
	case 0:
		logger.Warn("no http.token_hash or http.jwt_public_key set, control API is unauthenticated")
		return auth.NewOpenAuthenticator(), nil
	case 1:
		return auths[0], nil
	default:
		return auth.AnyOf(auths...), nil
	}
}

// serveHTTP runs srv until ctx is cancelled, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", zap.String("addr", srv.Addr), zap.Error(err))
		}
		return <-errCh
	}
}
