package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-notify/internal/config"
	goredis "github.com/redis/go-redis/v9"
)

// cmdable is the subset of *goredis.Client this package uses.
type cmdable interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	MGet(ctx context.Context, keys ...string) *goredis.SliceCmd
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg *config.Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}
