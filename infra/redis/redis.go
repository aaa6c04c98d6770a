package redisdb

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fazamuttaqien/permitting/config"
)

func NewRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.REDIS_ADDRESS,
		Password:     cfg.REDIS_PASSWORD,
		DB:           0,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		MaxRetries:   3,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		zap.L().Error(
			"Failed to ping Redis",
			zap.Error(err),
		)
		client.Close()
		return nil, err
	}
	zap.L().Info("Redis connected", zap.String("response", pong))

	return client, nil
}

// MonitorRedis blocks until a client connects or ctx is done.
func MonitorRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		client, err := NewRedis(cfg)
		if err == nil {
			zap.L().Info("Successfully connected to Redis")
			return client, nil
		}

		zap.L().Error(
			"Failed to connect to Redis, retrying in 5 seconds...",
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
