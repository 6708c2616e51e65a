package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/goliatone/go-formflow/pkg/storage"
	"github.com/goliatone/go-formflow/pkg/storage/badger"
	"github.com/goliatone/go-formflow/pkg/storage/memory"
	"github.com/goliatone/go-formflow/pkg/storage/redis"
	"github.com/goliatone/go-formflow/pkg/storage/sqlite"
)

// OpenStore opens the configured backend. The returned close function is
// never nil.
func (c Config) OpenStore(ctx context.Context, logger *slog.Logger) (storage.Store, func() error, error) {
	noop := func() error { return nil }

	switch c.Storage {
	case StorageMemory:
		return memory.New(), noop, nil
	case StorageSQLite:
		if c.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(c.SQLitePath), 0o755); err != nil {
				return nil, noop, fmt.Errorf("config: create sqlite dir: %w", err)
			}
		}
		store, err := sqlite.Open(ctx, c.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case StorageBadger:
		cfg := badger.DefaultConfig(c.BadgerPath)
		cfg.Logger = logger
		store, err := badger.Open(cfg)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case StorageRedis:
		var opts []redis.Option
		if c.RedisTTL > 0 {
			opts = append(opts, redis.WithTTL(c.RedisTTL))
		}
		store, err := redis.Dial(ctx, c.RedisURL, opts...)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("config: unknown storage backend %q", c.Storage)
	}
}
