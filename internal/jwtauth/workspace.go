package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/jwkset"
	keyfunc "github.com/MicahParks/keyfunc/v3"
	"golang.org/x/time/rate"
)

// WorkspaceAudience is the fixed audience of workspace-issued tokens.
const WorkspaceAudience = "dash"

// WorkspaceVerifier validates the token injected into a workspace session.
// It keeps its own auto-refreshing JWKS so the lookup is independent of the
// resolver used for request cookies. The key source is created on first use.
type WorkspaceVerifier struct {
	url    string
	client *http.Client
	now    func() time.Time

	mu     sync.Mutex
	kf     keyfunc.Keyfunc
	cancel context.CancelFunc
}

// NewWorkspaceVerifier fetches keys from jwksURL with client, so requests
// carry the same User-Agent as the resolver's.
func NewWorkspaceVerifier(jwksURL string, client *http.Client, now func() time.Time) *WorkspaceVerifier {
	if now == nil {
		now = time.Now
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &WorkspaceVerifier{url: jwksURL, client: client, now: now}
}

// Verify checks token with audience "dash" and algorithm RS256.
func (w *WorkspaceVerifier) Verify(ctx context.Context, token string) (map[string]any, error) {
	kf, err := w.keyfunc(ctx)
	if err != nil {
		return nil, err
	}
	claims, err := parseClaims(token, DefaultAlgorithm, w.now, kf.Keyfunc)
	if err != nil {
		return nil, err
	}
	if !audienceEquals(claims["aud"], WorkspaceAudience) {
		return nil, fmt.Errorf("%w: want %q, got %v", ErrAudienceMismatch, WorkspaceAudience, claims["aud"])
	}
	return claims, nil
}

// Close stops the background refresh, if one was started.
func (w *WorkspaceVerifier) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
		w.kf = nil
	}
}

func (w *WorkspaceVerifier) keyfunc(ctx context.Context) (keyfunc.Keyfunc, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.kf != nil {
		return w.kf, nil
	}
	if w.url == "" {
		return nil, fmt.Errorf("%w: no JWKS URL configured for workspace tokens", ErrKeyFetch)
	}

	// The refresh goroutine must outlive the request that triggered it.
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	remote, err := jwkset.NewStorageFromHTTP(w.url, jwkset.HTTPClientStorageOptions{
		Client:                    w.client,
		Ctx:                       bg,
		HTTPTimeout:               10 * time.Second,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           time.Hour,
	})
	if err != nil {
		cancel()
		return nil, errors.Join(ErrKeyFetch, err)
	}
	// Unknown kids past the limiter fail at once instead of queueing.
	store, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{w.url: remote},
		RateLimitWaitMax:  time.Millisecond,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(DefaultUnknownKeyInterval), 1),
	})
	if err != nil {
		cancel()
		return nil, errors.Join(ErrKeyFetch, err)
	}
	kf, err := keyfunc.New(keyfunc.Options{Ctx: bg, Storage: store})
	if err != nil {
		cancel()
		return nil, errors.Join(ErrKeyFetch, err)
	}
	w.kf, w.cancel = kf, cancel
	return kf, nil
}
