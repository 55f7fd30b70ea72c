package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/elnormous/contenttype"
	"github.com/ggoodman/dash-enterprise-auth-go/internal/httpx"
)

const (
	DefaultInitialInterval = time.Second
	DefaultMaxInterval     = 20 * time.Second

	maxJWKSBody = 1 << 20
)

// Fetcher retrieves JWKS documents. Transient failures (network errors, 5xx
// and 429 responses) are retried with exponential backoff until MaxTries is
// reached or ctx is done; anything else fails immediately.
type Fetcher struct {
	// Client should already set the User-Agent (see httpx.NewClient).
	Client *http.Client

	// InitialInterval doubles on each retry up to MaxInterval.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// MaxTries bounds the number of attempts. Zero means unbounded.
	MaxTries uint

	// Notify, when set, is told about every failed attempt that will be retried.
	Notify func(err error, next time.Duration)
}

// Fetch GETs url and parses the body as a JWKS document. The raw body is
// returned alongside the parsed set so it can be written to a shared store.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*KeySet, []byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = orDefault(f.InitialInterval, DefaultInitialInterval)
	b.MaxInterval = orDefault(f.MaxInterval, DefaultMaxInterval)
	b.Multiplier = 2
	b.RandomizationFactor = 0

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
	}
	if f.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(f.MaxTries))
	}
	if f.Notify != nil {
		opts = append(opts, backoff.WithNotify(f.Notify))
	}

	raw, err := backoff.Retry(ctx, func() ([]byte, error) {
		return f.get(ctx, url)
	}, opts...)
	if err != nil {
		if errors.Is(err, ErrKeyFetch) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrKeyFetch, url, err)
	}

	set, err := ParseKeySet(raw)
	if err != nil {
		return nil, nil, err
	}
	return set, raw, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrKeyFetch, err))
	}
	req.Header.Set("Accept", "application/json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		var se *httpx.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrKeyFetch, se))
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	// Clients built without httpx.Transport still see raw status codes.
	if resp.StatusCode >= http.StatusBadRequest {
		se := &httpx.StatusError{StatusCode: resp.StatusCode, Status: resp.Status, URL: url}
		if se.Temporary() {
			return nil, se
		}
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrKeyFetch, se))
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, err := contenttype.ParseMediaType(ct); err == nil && mt.Type == "text" && mt.Subtype == "html" {
			return nil, backoff.Permanent(fmt.Errorf("%w: %s returned an HTML page, not a JWKS", ErrKeyFetch, url))
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBody))
	if err != nil {
		return nil, err
	}
	return body, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
