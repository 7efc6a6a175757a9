// Package config_store persists the network document in a key-value store.
package config_store

import (
	"context"
	"fmt"

	"github.com/OpenTollGate/tollgate-module-netconfig-go/src/config_manager"
)

// Store is a key-value store whose writes become durable on Flush.
type Store interface {
	// Get returns nil, nil when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// Flush asks the store to write its data to disk in the background.
	Flush(ctx context.Context) error
	Close() error
}

// New opens the backend selected by cfg.
func New(ctx context.Context, cfg config_manager.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config_manager.BackendRedis:
		return NewRedisStore(ctx, cfg.RedisURL)
	case config_manager.BackendBuntDB, "":
		return NewBuntStore(cfg.BuntPath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
