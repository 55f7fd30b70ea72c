package jwtauth

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ggoodman/dash-enterprise-auth-go/storage"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// StoreNamespace is the storage namespace holding raw JWKS documents.
const StoreNamespace = "jwks"

// DefaultStoreTTL bounds how long a shared JWKS document is trusted.
const DefaultStoreTTL = 10 * time.Minute

// DefaultUnknownKeyInterval is the minimum spacing of refetches caused by
// tokens naming a kid the cached set does not hold.
const DefaultUnknownKeyInterval = time.Minute

// DefaultFetchTimeout bounds a shared fetch once it no longer follows the
// context of the request that started it.
const DefaultFetchTimeout = 2 * time.Minute

// Resolver caches the key set for one JWKS URL. The first load is coalesced
// across goroutines and every published set is complete.
type Resolver struct {
	url     string
	fetcher *Fetcher
	store   storage.Storage
	ttl     time.Duration
	log     *slog.Logger
	timeout time.Duration
	unknown *rate.Limiter

	current atomic.Pointer[KeySet]
	group   singleflight.Group
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithStore shares fetched documents through s.
func WithStore(s storage.Storage, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.store = s
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithUnknownKeyRefresh spaces unknown-kid refetches at least every apart.
// Zero or less removes the limit.
func WithUnknownKeyRefresh(every time.Duration) ResolverOption {
	return func(r *Resolver) {
		if every <= 0 {
			r.unknown = rate.NewLimiter(rate.Inf, 1)
			return
		}
		r.unknown = rate.NewLimiter(rate.Every(every), 1)
	}
}

// WithFetchTimeout bounds each shared network fetch.
func WithFetchTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger used for store and refresh diagnostics.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.log = l }
}

func NewResolver(url string, f *Fetcher, opts ...ResolverOption) *Resolver {
	if f == nil {
		f = &Fetcher{}
	}
	r := &Resolver{
		url:     url,
		fetcher: f,
		ttl:     DefaultStoreTTL,
		log:     slog.New(slog.DiscardHandler),
		timeout: DefaultFetchTimeout,
		unknown: rate.NewLimiter(rate.Every(DefaultUnknownKeyInterval), 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// URL is the JWKS endpoint this resolver serves.
func (r *Resolver) URL() string { return r.url }

// KeySet returns the cached set, loading it on first use.
func (r *Resolver) KeySet(ctx context.Context) (*KeySet, error) {
	if ks := r.current.Load(); ks != nil {
		return ks, nil
	}
	return r.load(ctx, true)
}

// Refresh replaces the cached set with a fresh copy from the network.
func (r *Resolver) Refresh(ctx context.Context) (*KeySet, error) {
	return r.load(ctx, false)
}

// ResolveKey finds the key named by the token's kid. An unknown kid causes
// one refetch before ErrUnknownKey is returned, unless another unknown kid
// already triggered one within the refresh interval.
func (r *Resolver) ResolveKey(ctx context.Context, token string) (SigningKey, error) {
	kid, err := KeyID(token)
	if err != nil {
		return SigningKey{}, err
	}

	ks, err := r.KeySet(ctx)
	if err != nil {
		return SigningKey{}, err
	}
	if k, ok := ks.Lookup(kid); ok {
		return k, nil
	}

	if !r.unknown.Allow() {
		r.log.DebugContext(ctx, "jwtauth.kid.unknown.throttled", slog.String("kid", kid), slog.String("url", r.url))
		return SigningKey{}, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
	}
	r.log.DebugContext(ctx, "jwtauth.kid.unknown", slog.String("kid", kid), slog.String("url", r.url))
	ks, err = r.Refresh(ctx)
	if err != nil {
		return SigningKey{}, err
	}
	if k, ok := ks.Lookup(kid); ok {
		return k, nil
	}
	return SigningKey{}, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
}

// load runs one shared fetch per key. The fetch is detached from ctx so a
// cancelled caller does not fail the others waiting on it; each caller still
// stops waiting when its own ctx is done.
func (r *Resolver) load(ctx context.Context, useStore bool) (*KeySet, error) {
	key := "refresh"
	if useStore {
		key = "load"
	}
	ch := r.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		if useStore {
			if ks := r.current.Load(); ks != nil {
				return ks, nil
			}
			if ks := r.fromStore(fctx); ks != nil {
				r.current.Store(ks)
				return ks, nil
			}
		}

		ks, raw, err := r.fetcher.Fetch(fctx, r.url)
		if err != nil {
			return nil, err
		}
		r.current.Store(ks)
		r.toStore(fctx, raw)
		return ks, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrKeyFetch, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*KeySet), nil
	}
}

func (r *Resolver) fromStore(ctx context.Context) *KeySet {
	if r.store == nil {
		return nil
	}
	item, err := r.store.Get(ctx, r.url, storage.WithNamespace(StoreNamespace))
	if err != nil {
		r.log.WarnContext(ctx, "jwtauth.store.get.fail", slog.String("url", r.url), slog.String("err", err.Error()))
		return nil
	}
	if item == nil {
		return nil
	}
	ks, err := ParseKeySet(item.Data)
	if err != nil {
		r.log.WarnContext(ctx, "jwtauth.store.decode.fail", slog.String("url", r.url), slog.String("err", err.Error()))
		return nil
	}
	ks.fetchedAt = item.CreatedAt
	return ks
}

func (r *Resolver) toStore(ctx context.Context, raw []byte) {
	if r.store == nil {
		return
	}
	if err := r.store.Set(ctx, r.url, raw, storage.WithNamespace(StoreNamespace), storage.WithTTL(r.ttl)); err != nil {
		r.log.WarnContext(ctx, "jwtauth.store.set.fail", slog.String("url", r.url), slog.String("err", err.Error()))
	}
}
