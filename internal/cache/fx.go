package cache

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/leadbridge/internal/clock"
	"github.com/smallbiznis/leadbridge/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("cache",
	fx.Provide(
		NewRedisClient,
		NewStore,
		NewLocker,
		NewKeyedMutex,
	),
)

// NewRedisClient returns nil when redis is disabled.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis ping failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// NewStore picks redis when a client is configured, memory otherwise.
func NewStore(client *redis.Client, c clock.Clock, log *zap.Logger) Store {
	if client == nil {
		log.Named("cache").Info("using in-memory cache store")
		return NewMemoryStore(c)
	}
	log.Named("cache").Info("using redis cache store")
	return NewRedisStore(client)
}
