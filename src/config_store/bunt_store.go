package config_store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/buntdb"
)

// BuntStore keeps the document in an append-only buntdb file. Writes are not
// fsynced until Flush.
type BuntStore struct {
	db *buntdb.DB
}

var _ Store = (*BuntStore)(nil)

// NewBuntStore opens path, or an in-memory database for ":memory:".
func NewBuntStore(path string) (*BuntStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb at %s: %w", path, err)
	}

	var cfg buntdb.Config
	if err := db.ReadConfig(&cfg); err != nil {
		db.Close()
		return nil, err
	}
	cfg.SyncPolicy = buntdb.Never
	if err := db.SetConfig(cfg); err != nil {
		db.Close()
		return nil, err
	}
	return &BuntStore{db: db}, nil
}

func (s *BuntStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			return err
		}
		value = []byte(v)
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *BuntStore) Set(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(value), nil)
		return err
	})
}

// Flush rewrites the append-only file. A rewrite already running satisfies
// the request.
func (s *BuntStore) Flush(ctx context.Context) error {
	err := s.db.Shrink()
	if errors.Is(err, buntdb.ErrShrinkInProcess) {
		return nil
	}
	return err
}

func (s *BuntStore) Close() error {
	return s.db.Close()
}
