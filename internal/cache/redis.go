package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const connectTimeout = 5 * time.Second

// clientOptions accepts either host:port or a redis:// / rediss:// URL. Password
// and db apply only when the URL does not carry its own.
func clientOptions(addr, password string, db int) (*redis.Options, error) {
	if !strings.HasPrefix(addr, "redis://") && !strings.HasPrefix(addr, "rediss://") {
		return &redis.Options{Addr: addr, Password: password, DB: db}, nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	if opts.Password == "" {
		opts.Password = password
	}
	if opts.DB == 0 {
		opts.DB = db
	}
	return opts, nil
}

// ConnectRedis creates a client and pings it. The client is also the Asynq broker.
func ConnectRedis(addr, password string, db int, log *zap.Logger) (*redis.Client, error) {
	opts, err := clientOptions(addr, password, db)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	log.Info("connected to Redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB), zap.Bool("tls", opts.TLSConfig != nil))
	return rdb, nil
}

// DisconnectRedis closes the client. A nil client is a no-op.
func DisconnectRedis(client *redis.Client, log *zap.Logger) error {
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	log.Info("Redis connection closed")
	return nil
}
