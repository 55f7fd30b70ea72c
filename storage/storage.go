// Package storage defines the byte store the key resolver uses to share
// fetched JWKS documents between resolvers, processes or replicas. A store is
// purely an accelerator: a miss or an error always falls back to the network.
package storage

import (
	"context"
	"time"
)

// Storage is a small key/value store with optional per-item expiry.
type Storage interface {
	// Get returns the item stored under key within the namespace selected by
	// opts. It returns a nil item (and nil error) when the key is missing or
	// has expired; errors are reserved for backend failures.
	Get(ctx context.Context, key string, opts ...Option) (*Item, error)

	// Set stores data under key, replacing any previous value.
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string, opts ...Option) error

	// Close releases backend resources.
	Close() error
}

// Item is a stored value with its bookkeeping.
type Item struct {
	Data      []byte
	CreatedAt time.Time
	ExpiresAt *time.Time // nil = no expiration
}

// IsExpired reports whether the item expired as of now.
func (i *Item) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && !now.Before(*i.ExpiresAt)
}

// Option configures a storage operation.
type Option func(*Options)

// Options is the resolved set of per-call options.
type Options struct {
	Namespace string         // "" = global
	TTL       *time.Duration // Set only
}

// Apply folds opts into a fresh Options value.
func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithNamespace scopes the operation to ns.
func WithNamespace(ns string) Option {
	return func(o *Options) { o.Namespace = ns }
}

// WithTTL sets a time-to-live for the stored data.
func WithTTL(ttl time.Duration) Option {
	return func(o *Options) { o.TTL = &ttl }
}

// Key joins a namespace and key the way every backend lays them out.
func Key(ns, key string) string {
	if ns == "" {
		return "global:" + key
	}
	return ns + ":" + key
}
