package dashauth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ggoodman/dash-enterprise-auth-go/storage"
)

// Option configures a Service beyond what the environment describes.
type Option func(*options)

type options struct {
	logHandler      slog.Handler
	httpClient      *http.Client
	keyStore        storage.Storage
	now             func() time.Time
	initialInterval time.Duration
	maxInterval     time.Duration
	userInfoTimeout time.Duration
}

// WithLogHandler sets the slog handler. Logs are discarded by default.
func WithLogHandler(h slog.Handler) Option {
	return func(o *options) { o.logHandler = h }
}

// WithHTTPClient sets the client used for key set and user-info calls. The
// client is copied; its transport is wrapped to set the User-Agent.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithKeyStore shares fetched key set documents through s, for example a
// Redis store used by every replica of an app. Entries live for
// Config.KeyCacheTTL.
func WithKeyStore(s storage.Storage) Option {
	return func(o *options) { o.keyStore = s }
}

// WithClock replaces time.Now for token and ticket expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRetryIntervals tunes key set fetch backoff. The defaults are 1s
// doubling up to 20s.
func WithRetryIntervals(initial, max time.Duration) Option {
	return func(o *options) {
		o.initialInterval = initial
		o.maxInterval = max
	}
}

// WithUserInfoTimeout bounds each user-info call. The default is 10s.
func WithUserInfoTimeout(d time.Duration) Option {
	return func(o *options) { o.userInfoTimeout = d }
}
