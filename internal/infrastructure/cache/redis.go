package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"job-recommender/internal/config"
	"job-recommender/internal/logger"

	"github.com/redis/go-redis/v9"
)

// NewClient builds a client from cfg without touching the network. REDIS_URL wins over REDIS_ADDR.
func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	if u := strings.TrimSpace(cfg.URL); u != "" {
		opts, err := redis.ParseURL(u)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		if cfg.DialTimeout > 0 {
			opts.DialTimeout = cfg.DialTimeout
		}
		return redis.NewClient(opts), nil
	}

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = "localhost:6379"
	}
	return redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	}), nil
}

// Probe pings the store with a short deadline. The caller decides what an unreachable store means.
func Probe(ctx context.Context, client redis.Cmdable, log logger.Logger) error {
	if client == nil {
		return fmt.Errorf("nil redis client")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.OrNop(log).Warn("redis unreachable", map[string]interface{}{"err": err})
		return err
	}
	return nil
}
