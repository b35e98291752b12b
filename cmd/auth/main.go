package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/DrJLabs/forgetful-auth/internal/adapter/cache"
	"github.com/DrJLabs/forgetful-auth/internal/adapter/upstream"
	"github.com/DrJLabs/forgetful-auth/internal/bootstrap"
	"github.com/DrJLabs/forgetful-auth/internal/config"
	httptransport "github.com/DrJLabs/forgetful-auth/internal/http"
	"github.com/DrJLabs/forgetful-auth/internal/http/handler"
	httpmiddleware "github.com/DrJLabs/forgetful-auth/internal/http/middleware"
	"github.com/DrJLabs/forgetful-auth/internal/jwt"
	apimiddleware "github.com/DrJLabs/forgetful-auth/internal/middleware"
	"github.com/DrJLabs/forgetful-auth/internal/repository"
	"github.com/DrJLabs/forgetful-auth/internal/server"
	"github.com/DrJLabs/forgetful-auth/internal/service"
	"github.com/DrJLabs/forgetful-auth/internal/store"
	"github.com/DrJLabs/forgetful-auth/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newKeyProvider,
			newTokenGenerator,
			newStateStores,
			newFederator,
			newClientRepository,
			service.NewOAuthService,
			newDiscoveryService,
			handler.NewAuthHandler,
			newAuthMiddleware,
			newRateLimiter,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureClients, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newKeyProvider(cfg config.Config, logger *zap.Logger) (*jwt.KeyProvider, error) {
	return jwt.NewKeyProvider(cfg, logger)
}

func newTokenGenerator(keys *jwt.KeyProvider, cfg config.Config) *jwt.Generator {
	return jwt.NewGenerator(keys, cfg.AccessTokenTTL)
}

// newStateStores selects Redis when REDIS_ADDR is set, otherwise an
// in-process store. Both interfaces are served by one backend so a pending
// request and its code share a lifetime domain.
func newStateStores(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (store.PendingRequestStore, store.CodeStore, error) {
	if cfg.RedisAddr == "" {
		mem := store.NewMemory(time.Minute)
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				mem.Stop()
				return nil
			},
		})
		logger.Info("state store ready", zap.String("backend", "memory"))
		return mem, mem, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	rs := cacheadapter.NewRedisStore(client)
	logger.Info("state store ready", zap.String("backend", "redis"), zap.String("addr", cfg.RedisAddr))
	return rs, rs, nil
}

func newFederator(cfg config.Config) upstream.Federator {
	return upstream.NewGoogleFederator(cfg, nil)
}

// newClientRepository uses Postgres when DATABASE_URL is set, otherwise the
// static registry parsed from CLIENTS.
func newClientRepository(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (repository.ClientRepository, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("client registry ready", zap.String("backend", "static"), zap.Int("clients", len(cfg.Clients)))
		return repository.NewStaticClientRepo(cfg.Clients), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	logger.Info("client registry ready", zap.String("backend", "postgres"))
	return repository.NewPostgresClientRepo(pool), nil
}

func newDiscoveryService(cfg config.Config) *service.DiscoveryService {
	return service.NewDiscoveryService(cfg)
}

func newAuthMiddleware(oauth service.OAuthService) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{OAuth: oauth}
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
