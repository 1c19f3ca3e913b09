package store

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Open builds the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (Backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return NewMemoryBackend(), nil

	case config.DriverBadger:
		return NewBadgerBackend(BadgerConfig{Path: cfg.Path, Logger: log.Named("badger")})

	case config.DriverSQLite:
		return NewSQLiteBackend(ctx, cfg.Path)

	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return NewRedisBackend(client, 0), nil

	case config.DriverMongo:
		db, err := ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		backend := NewMongoBackend(db)
		if err := backend.CreateIndexes(ctx); err != nil {
			backend.Close()
			return nil, err
		}
		return backend, nil
	}
	return nil, fmt.Errorf("%w: unknown store driver %q", config.ErrInvalidConfig, cfg.Driver)
}
