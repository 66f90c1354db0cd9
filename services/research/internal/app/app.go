// Package app wires the research service together.
package app

import (
	"context"
	"fmt"
	"time"

	"hhresearch/common/cache"
	"hhresearch/common/cache/file"
	"hhresearch/common/cache/redis"
	"hhresearch/common/database"
	"hhresearch/common/database/schema"
	"hhresearch/common/database/schema/migrations"
	"hhresearch/common/telemetry"
	"hhresearch/services/research/internal/analyzer"
	"hhresearch/services/research/internal/api"
	"hhresearch/services/research/internal/collector"
	"hhresearch/services/research/internal/config"
	"hhresearch/services/research/internal/events"
	"hhresearch/services/research/internal/exchange"
	"hhresearch/services/research/internal/predictor"
	"hhresearch/services/research/internal/researcher"
	"hhresearch/services/research/internal/server"
	"hhresearch/services/research/internal/storage"
	"hhresearch/services/research/internal/tasks"

	"github.com/nats-io/nats.go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// Module provides the long-running service: HTTP API, task manager and,
// when enabled, the NATS request handler.
var Module = fx.Module("research",
	fx.Provide(
		config.LoadConfig,
		NewLogger,
		newListingCache,
		NewResearcher,
		newNATSConnection,
		newReporter,
		newTaskManager,
		newServer,
	),
	fx.Invoke(
		initTracing,
		registerHandler,
		func(*server.Server) {},
	),
)

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.LogDevelopment {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parsing LOG_LEVEL: %w", err)
	}
	zc.Level = level
	return zc.Build(zap.Fields(zap.String("service", cfg.ServiceName)))
}

func InitTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	return telemetry.InitTracer(ctx, telemetry.Options{
		ServiceName:  cfg.ServiceName,
		CollectorURL: cfg.OTELCollectorURL,
	})
}

func initTracing(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) error {
	shutdown, err := InitTracing(context.Background(), cfg)
	if err != nil {
		return err
	}
	if cfg.OTELCollectorURL != "" {
		logger.Info("tracing enabled", zap.String("collector", cfg.OTELCollectorURL))
	}
	lc.Append(fx.Hook{OnStop: shutdown})
	return nil
}

func OpenCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.ResultCache, func() error, error) {
	switch cfg.CacheBackend {
	case cache.BackendFile:
		store, err := file.New(cfg.CacheOptions())
		if err != nil {
			return nil, nil, err
		}
		c := storage.NewKeyValueCache(store, cfg.CacheTTL)
		logger.Info("using file listing cache", zap.String("dir", cfg.CacheDir))
		return c, c.Close, nil

	case cache.BackendRedis:
		store := redis.New(cfg.CacheOptions())
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		c := storage.NewKeyValueCache(store, cfg.CacheTTL)
		logger.Info("using redis listing cache", zap.String("addr", cfg.RedisAddr))
		return c, c.Close, nil

	case cache.BackendClickHouse:
		db, err := database.New(ctx, cfg.DatabaseOptions(), logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.ClickHouseAutoMigrate {
			applied, err := schema.NewMigrator(db.Conn(), logger).Migrate(ctx, migrations.All)
			if err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("migrating clickhouse: %w", err)
			}
			logger.Info("clickhouse schema up to date", zap.Int("applied", applied))
		}
		return storage.NewClickHouseCache(db.Conn(), logger), db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

func newListingCache(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (storage.ResultCache, error) {
	c, closeCache, err := OpenCache(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return closeCache() },
	})
	return c, nil
}

func NewResearcher(cfg *config.Config, logger *zap.Logger, cache storage.ResultCache) *researcher.Researcher {
	return researcher.New(
		api.NewListingSource(logger, cfg),
		cache,
		exchange.NewProvider(logger, cfg),
		analyzer.New(analyzer.WithTopN(cfg.TopN), analyzer.WithLogger(logger)),
		predictor.New(
			predictor.WithMinDF(cfg.PredictMinDF),
			predictor.WithAlpha(cfg.PredictAlpha),
			predictor.WithLogger(logger),
		),
		logger,
		researcher.Options{
			Collector: collector.Options{
				MaxPages:    cfg.SearchMaxPages,
				ItemTimeout: cfg.ItemTimeout,
			},
			BaseCurrency: cfg.RatesBaseCurrency,
		},
	)
}

// newNATSConnection returns a nil connection when NATS is disabled.
func newNATSConnection(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*nats.Conn, error) {
	if !cfg.NATSEnabled {
		return nil, nil
	}
	conn, err := events.Connect(logger, cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return conn.Drain() },
	})
	return conn, nil
}

func newReporter(conn *nats.Conn, logger *zap.Logger) tasks.Reporter {
	if conn == nil {
		return tasks.NopReporter{}
	}
	return events.NewPublisher(conn, logger)
}

func newTaskManager(lc fx.Lifecycle, r *researcher.Researcher, reporter tasks.Reporter, logger *zap.Logger, cfg *config.Config) *tasks.Manager {
	m := tasks.NewManager(r, reporter, logger, cfg.TaskRetention)
	lc.Append(fx.Hook{OnStop: m.Shutdown})
	return m
}

func newServer(lc fx.Lifecycle, m *tasks.Manager, logger *zap.Logger, cfg *config.Config) *server.Server {
	s := server.New(logger, m, cfg.DefaultSettings(), cfg.HTTPAddr)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := s.Listen(); err != nil {
					logger.Error("HTTP server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: s.Shutdown,
	})
	return s
}

func registerHandler(lc fx.Lifecycle, conn *nats.Conn, m *tasks.Manager, logger *zap.Logger, cfg *config.Config) error {
	if conn == nil {
		logger.Info("NATS disabled; research requests accepted over HTTP only")
		return nil
	}
	return events.NewHandler(logger, conn, m, cfg.DefaultSettings()).RegisterSubscriptions(lc)
}
