// Package memory provides an in-process storage.Storage backed by
// github.com/hashicorp/golang-lru/v2 with lazy TTL expiry.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ggoodman/dash-enterprise-auth-go/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Storage implements storage.Storage in memory.
type Storage struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *storage.Item]
	now   func() time.Time
}

var _ storage.Storage = (*Storage)(nil)

// New creates an in-memory store holding at most maxItems entries.
func New(maxItems int) (*Storage, error) {
	cache, err := lru.New[string, *storage.Item](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &Storage{cache: cache, now: time.Now}, nil
}

// Get retrieves the item for key, dropping it if it has expired.
func (s *Storage) Get(ctx context.Context, key string, opts ...storage.Option) (*storage.Item, error) {
	o := storage.Apply(opts...)
	k := storage.Key(o.Namespace, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.cache.Get(k)
	if !ok {
		return nil, nil
	}
	if item.IsExpired(s.now()) {
		s.cache.Remove(k)
		return nil, nil
	}
	return copyItem(item), nil
}

// Set stores a private copy of data under key.
func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	o := storage.Apply(opts...)
	now := s.now()

	item := &storage.Item{
		Data:      append([]byte(nil), data...),
		CreatedAt: now,
	}
	if o.TTL != nil {
		exp := now.Add(*o.TTL)
		item.ExpiresAt = &exp
	}

	s.mu.Lock()
	s.cache.Add(storage.Key(o.Namespace, key), item)
	s.mu.Unlock()
	return nil
}

// Delete removes key.
func (s *Storage) Delete(ctx context.Context, key string, opts ...storage.Option) error {
	o := storage.Apply(opts...)
	s.mu.Lock()
	s.cache.Remove(storage.Key(o.Namespace, key))
	s.mu.Unlock()
	return nil
}

// Close drops every entry.
func (s *Storage) Close() error {
	s.mu.Lock()
	s.cache.Purge()
	s.mu.Unlock()
	return nil
}

func copyItem(in *storage.Item) *storage.Item {
	out := *in
	out.Data = append([]byte(nil), in.Data...)
	return &out
}
