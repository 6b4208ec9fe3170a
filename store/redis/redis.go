// Package redis stores slots in Redis so several processes can share them.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/najoast/socialshard/store"
)

// Store is a Store backed by Redis string keys.
type Store struct {
	client *goredis.Client
	prefix string
}

// Options configures the Redis backend.
type Options struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix is prepended to every slot name
	KeyPrefix string
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store/redis: ping: %w", err)
	}

	return &Store{client: client, prefix: opts.KeyPrefix}, nil
}

func (s *Store) Get(ctx context.Context, slot string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.prefix+slot).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store/redis: get %q: %w", slot, err)
	}
	return value, nil
}

func (s *Store) Replace(ctx context.Context, slot string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+slot, value, 0).Err(); err != nil {
		return fmt.Errorf("store/redis: set %q: %w", slot, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
