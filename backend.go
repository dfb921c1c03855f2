package main

import (
	"context"
	"fmt"

	"github.com/Seednode/chungsuc/storage"
	"github.com/redis/go-redis/v9"
)

// backend is where the show keeps its state and hears about writes from
// other processes.
type backend struct {
	kv    storage.KV
	bus   storage.Bus
	close func() error
}

func openBackend(ctx context.Context, cfg *Config) (*backend, error) {
	switch cfg.backend() {
	case "redis":
		opt, err := redis.ParseURL(cfg.redisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}

		client := redis.NewClient(opt)

		r, err := storage.NewRedis(ctx, &storage.RedisConfig{
			Client:  client,
			Channel: cfg.redisChannel,
		})
		if err != nil {
			_ = client.Close()

			return nil, err
		}

		return &backend{kv: r, bus: r, close: client.Close}, nil

	case "file":
		f, err := storage.NewFile(cfg.stateDir)
		if err != nil {
			return nil, err
		}

		// Files are not watched, so only this process hears about writes
		return &backend{kv: f, bus: storage.NewMemory(), close: func() error { return nil }}, nil

	default:
		m := storage.NewMemory()

		return &backend{kv: m, bus: m, close: func() error { return nil }}, nil
	}
}
