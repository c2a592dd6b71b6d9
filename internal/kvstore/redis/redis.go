// Package redis keeps checkpoint keys in Redis under a key prefix.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"sheetops/internal/kvstore"
)

// Client is the subset of the go-redis client the store uses.
type Client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

// Store is a Redis-backed kvstore.Store.
type Store struct {
	client Client
	prefix string
}

// New wraps an existing client.
func New(client Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// newClient is a test hook.
var newClient = func(opts *goredis.Options) Client { return goredis.NewClient(opts) }

// Open parses a redis:// URL, connects and pings.
func Open(ctx context.Context, url, prefix string) (*Store, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("kvstore/redis: URL must not be empty")
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("kvstore/redis: parse url: %w", err)
	}
	c := newClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("kvstore/redis: ping: %w", err)
	}
	return New(c, prefix), nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kvstore/redis: get %q: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("kvstore/redis: set %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("kvstore/redis: del %q: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error { return s.client.Close() }

var _ kvstore.Store = (*Store)(nil)

func init() {
	kvstore.Register("redis", func(ctx context.Context, cfg kvstore.Config) (kvstore.Store, error) {
		return Open(ctx, cfg.DSN, cfg.Prefix)
	})
}
