package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/choreo"
	"github.com/xraph/choreo/engine"
	"github.com/xraph/choreo/store/memory"
	"github.com/xraph/choreo/store/postgres"
	redisstore "github.com/xraph/choreo/store/redis"
)

// openBackend connects the store and feed selected by cfg.Backend. The
// returned close function releases every resource the backend owns.
func openBackend(ctx context.Context, cfg choreo.Config, logger *slog.Logger) (engine.Backend, func() error, error) {
	switch cfg.Backend {
	case "", "memory":
		s := memory.New()
		return s, s.Close, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		s := redisstore.New(client, redisstore.WithLogger(logger))
		if err := s.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return s, func() error {
			return errors.Join(s.Close(), client.Close())
		}, nil

	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, nil, errors.New("postgres backend requires postgres_dsn")
		}
		s, err := postgres.New(ctx, cfg.PostgresDSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q: must be one of memory, redis, postgres", cfg.Backend)
	}
}
