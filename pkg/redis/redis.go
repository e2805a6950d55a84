// Package redis creates go-redis clients.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultPingTimeout = 5 * time.Second

type Option func(*goredis.Options)

func WithPassword(password string) Option {
	return func(o *goredis.Options) {
		o.Password = password
	}
}

func WithDB(db int) Option {
	return func(o *goredis.Options) {
		o.DB = db
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *goredis.Options) {
		o.DialTimeout = d
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *goredis.Options) {
		o.ReadTimeout = d
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *goredis.Options) {
		o.WriteTimeout = d
	}
}

func WithPoolSize(n int) Option {
	return func(o *goredis.Options) {
		o.PoolSize = n
	}
}

func WithMinIdleConns(n int) Option {
	return func(o *goredis.Options) {
		o.MinIdleConns = n
	}
}

// New connects to addr and pings it.
func New(ctx context.Context, addr string, opts ...Option) (*goredis.Client, error) {
	const op = "redis.New"

	o := &goredis.Options{Addr: addr}
	for _, opt := range opts {
		opt(o)
	}

	client := goredis.NewClient(o)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%s: failed to connect to redis: %w", op, err)
	}

	return client, nil
}
