// Package redis provides a storage.Storage backed by Redis so that several
// replicas of an app can share one fetched JWKS document.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/dash-enterprise-auth-go/storage"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the Redis storage.
type Config struct {
	// Client is the Redis client instance. When nil, New dials Addr.
	Client *redis.Client

	// Addr like "localhost:6379". ENV: DASH_AUTH_REDIS_ADDR
	Addr string `env:"DASH_AUTH_REDIS_ADDR,default=localhost:6379"`

	// KeyPrefix for all keys. ENV: DASH_AUTH_REDIS_PREFIX
	KeyPrefix string `env:"DASH_AUTH_REDIS_PREFIX,default=dashauth:"`
}

// Storage implements storage.Storage using Redis.
type Storage struct {
	client    *redis.Client
	keyPrefix string
	owned     bool
}

var _ storage.Storage = (*Storage)(nil)

// storedItem is the envelope written to Redis.
type storedItem struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// New creates a Redis-backed store.
func New(config Config) (*Storage, error) {
	s := &Storage{client: config.Client, keyPrefix: config.KeyPrefix}
	if s.client == nil {
		if config.Addr == "" {
			return nil, errors.New("redis client or address is required")
		}
		s.client = redis.NewClient(&redis.Options{Addr: config.Addr})
		s.owned = true
	}
	if s.keyPrefix == "" {
		s.keyPrefix = "dashauth:"
	}
	return s, nil
}

// NewFromEnv builds a Storage using envdecode to populate Config and checks
// connectivity before returning.
func NewFromEnv(ctx context.Context) (*Storage, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("redis config: %w", err)
	}
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return s, nil
}

// Get retrieves the item for key.
func (s *Storage) Get(ctx context.Context, key string, opts ...storage.Option) (*storage.Item, error) {
	o := storage.Apply(opts...)
	redisKey := s.buildKey(o.Namespace, key)

	raw, err := s.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key %s: %w", redisKey, err)
	}

	var si storedItem
	if err := json.Unmarshal(raw, &si); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored data: %w", err)
	}
	item := &storage.Item{Data: si.Data, CreatedAt: si.CreatedAt, ExpiresAt: si.ExpiresAt}
	if item.IsExpired(time.Now()) {
		return nil, nil
	}
	return item, nil
}

// Set stores data under key; a TTL maps onto the Redis key expiry.
func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	o := storage.Apply(opts...)
	redisKey := s.buildKey(o.Namespace, key)

	now := time.Now()
	si := storedItem{Data: data, CreatedAt: now}
	var ttl time.Duration
	if o.TTL != nil {
		ttl = *o.TTL
		exp := now.Add(ttl)
		si.ExpiresAt = &exp
	}

	raw, err := json.Marshal(si)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	if err := s.client.Set(ctx, redisKey, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", redisKey, err)
	}
	return nil
}

// Delete removes key.
func (s *Storage) Delete(ctx context.Context, key string, opts ...storage.Option) error {
	o := storage.Apply(opts...)
	redisKey := s.buildKey(o.Namespace, key)
	if err := s.client.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", redisKey, err)
	}
	return nil
}

// Close closes the client if this Storage dialed it.
func (s *Storage) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

func (s *Storage) buildKey(ns, key string) string {
	return s.keyPrefix + storage.Key(ns, key)
}
