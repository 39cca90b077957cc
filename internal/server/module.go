package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dreamflow/internal/breaker"
	"dreamflow/internal/cache"
	"dreamflow/internal/chat"
	"dreamflow/internal/config"
	"dreamflow/internal/database"
	"dreamflow/internal/handlers"
	"dreamflow/internal/logging"
	"dreamflow/internal/middleware"
	"dreamflow/internal/monitoring"
	"dreamflow/internal/repositories"
	"dreamflow/internal/services"
	"dreamflow/internal/telemetry"
)

// Module wires the API server from configuration to a running http.Server.
var Module = fx.Module("server",
	fx.Provide(
		config.LoadConfig,
		NewLogger,
		NewDatabase,
		func(pool *database.DatabasePool) *gorm.DB { return pool.DB },
		NewCache,
		monitoring.NewMetrics,
		NewHealthChecker,
		NewRateLimiter,
		repositories.NewUserRepository,
		repositories.NewRefreshTokenRepository,
		repositories.NewConversationRepository,
		NewTaskService,
		NewAuthService,
		NewRegisterService,
		NewChatService,
		func(r *repositories.ConversationRepository) handlers.ConversationReader { return r },
		func(s *chat.Service) handlers.ChatService { return s },
		NewRouter,
		NewHTTPServer,
	),
	fx.Invoke(
		StartTracing,
		PurgeExpiredTokens,
		RegisterHTTPServer,
	),
)

// FxLogger routes fx's own events through zap.
func FxLogger(log *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: log.Named("fx")}
}

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.LogLevel, cfg.IsProduction())
}

func StartTracing(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) error {
	shutdown, err := telemetry.Setup(context.Background(), telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{OnStop: shutdown})
	return nil
}

func NewDatabase(lc fx.Lifecycle, cfg *config.Config, metrics *monitoring.Metrics, log *zap.Logger) (*database.DatabasePool, error) {
	poolCfg := database.DefaultPoolConfig()
	poolCfg.Driver = cfg.Database.Driver
	poolCfg.DSN = cfg.GetDatabaseDSN()
	poolCfg.MaxOpenConns = cfg.Database.MaxOpenConns
	poolCfg.MaxIdleConns = cfg.Database.MaxIdleConns
	poolCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	poolCfg.ConnMaxIdleTime = cfg.Database.ConnMaxIdleTime
	if cfg.IsProduction() {
		poolCfg.LogLevel = logger.Warn
	}

	pool, err := database.NewDatabasePool(poolCfg, log.Named("gorm"))
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(pool.DB); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	metrics.AddSource("database", func() any { return pool.Stats() })

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			log.Info("closing database pool", zap.Any("stats", pool.Stats()))
			return pool.Close()
		},
	})
	return pool, nil
}

// NewCache returns nil when Redis is disabled; callers then read straight
// through to the database.
func NewCache(lc fx.Lifecycle, cfg *config.Config, metrics *monitoring.Metrics, log *zap.Logger) *cache.RedisCache {
	if !cfg.Redis.Enabled {
		log.Info("redis cache disabled")
		return nil
	}

	cacheCfg := cache.DefaultCacheConfig()
	cacheCfg.Addr = cfg.GetRedisAddr()
	cacheCfg.Password = cfg.Redis.Password
	cacheCfg.DB = cfg.Redis.DB
	cacheCfg.PoolSize = cfg.Redis.PoolSize
	cacheCfg.MinIdleConns = cfg.Redis.MinIdleConns
	cacheCfg.MaxRetries = cfg.Redis.MaxRetries
	cacheCfg.DialTimeout = cfg.Redis.DialTimeout
	cacheCfg.ReadTimeout = cfg.Redis.ReadTimeout
	cacheCfg.WriteTimeout = cfg.Redis.WriteTimeout

	cb := breaker.New(&breaker.Config{Name: "redis", MaxFailures: 5, Timeout: 30 * time.Second, HalfOpenMaxCalls: 1})
	rc := cache.NewRedisCache(cacheCfg, cb)
	metrics.AddSource("cache", func() any { return rc.Stats() })
	metrics.AddSource("cache_breaker", func() any { return cb.Stats() })
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := rc.Health(ctx); err != nil {
				log.Warn("redis not reachable at startup, serving uncached", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error { return rc.Close() },
	})
	return rc
}

func NewHealthChecker(pool *database.DatabasePool, rc *cache.RedisCache) *monitoring.HealthChecker {
	checker := monitoring.NewHealthChecker(5 * time.Second)
	checker.Register("database", pool.Health)
	if rc != nil {
		checker.RegisterOptional("redis", rc.Health)
	}
	return checker
}

func NewRateLimiter(cfg *config.Config) *middleware.RateLimiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize, cfg.RateLimit.CleanupInterval)
}

func NewTaskService(db *gorm.DB, rc *cache.RedisCache, log *zap.Logger) services.TaskService {
	base := services.NewTaskService(repositories.NewTaskRepository(db))
	if rc == nil {
		return base
	}
	return services.NewCachedTaskService(base, rc, log.Named("task-cache"))
}

func NewAuthService(cfg *config.Config, users *repositories.UserRepository, tokens *repositories.RefreshTokenRepository) services.AuthService {
	return services.NewAuthService(users, tokens, services.AuthConfig{
		Secret:          cfg.Auth.JWTSecret,
		Issuer:          cfg.Auth.Issuer,
		AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
	})
}

func NewRegisterService(cfg *config.Config, users *repositories.UserRepository) services.RegisterService {
	return services.NewRegisterService(users, cfg.Auth.BCryptCost)
}

func NewChatService(
	cfg *config.Config,
	tasks services.TaskService,
	conversations *repositories.ConversationRepository,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) (*chat.Service, error) {
	chatLog := log.Named("chat")

	var completionModel chat.ChatModel
	m, err := chat.NewChatModel(context.Background(), cfg.Chat)
	switch {
	case errors.Is(err, chat.ErrNotConfigured):
		chatLog.Warn("no chat API key configured, chat replies will apologise")
	case err != nil:
		return nil, err
	default:
		completionModel = m
		chatLog.Info("chat model ready", zap.String("provider", cfg.Chat.Provider), zap.String("model", cfg.Chat.Model))
	}

	cb := breaker.New(&breaker.Config{
		Name:             "completion",
		MaxFailures:      cfg.Chat.BreakerFailures,
		Timeout:          cfg.Chat.BreakerResetAfter,
		HalfOpenMaxCalls: 1,
	})
	metrics.AddSource("completion_breaker", func() any { return cb.Stats() })

	completer := chat.NewCompleter(completionModel, chat.CompleterConfig{
		Timeout:    cfg.Chat.Timeout,
		MaxRetries: cfg.Chat.MaxRetries,
	}, cb, chatLog)
	return chat.NewService(tasks, conversations, completer, cfg.Chat.HistoryWindow, chatLog), nil
}

func PurgeExpiredTokens(lc fx.Lifecycle, tokens *repositories.RefreshTokenRepository, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			n, err := tokens.DeleteExpired(ctx, time.Now())
			if err != nil {
				log.Warn("purging expired refresh tokens failed", zap.Error(err))
				return nil
			}
			if n > 0 {
				log.Info("purged expired refresh tokens", zap.Int64("count", n))
			}
			return nil
		},
	})
}

func NewHTTPServer(cfg *config.Config, engine *gin.Engine) *http.Server {
	return &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func RegisterHTTPServer(lc fx.Lifecycle, srv *http.Server, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("starting server", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server stopped unexpectedly", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server")
			return srv.Shutdown(ctx)
		},
	})
}
