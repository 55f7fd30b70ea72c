package dashauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ggoodman/dash-enterprise-auth-go/internal/authctx"
	"github.com/ggoodman/dash-enterprise-auth-go/internal/logctx"
	"github.com/google/uuid"
)

// HeaderRequestID is read from inbound requests and echoed on responses.
const HeaderRequestID = "X-Request-Id"

// WithRequest makes r the live request for identity lookups on ctx.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return authctx.WithRequest(ctx, r)
}

// WithCallbackCookies binds cookies captured from an earlier request, for
// work that runs after that request has completed.
func WithCallbackCookies(ctx context.Context, cookies map[string]string) context.Context {
	return authctx.WithCallbackCookies(ctx, cookies)
}

// CallbackCookies captures the identity cookies of r for a later
// WithCallbackCookies. Cookies that are not set are left out.
func CallbackCookies(r *http.Request) map[string]string {
	out := map[string]string{}
	for _, name := range []string{CookieIDToken, CookieAccessToken} {
		if c, err := r.Cookie(name); err == nil {
			out[name] = c.Value
		}
	}
	return out
}

// Middleware binds each request to its own context so identity lookups can
// reach it, and tags the context with a request id for logging.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, bindRequest(w, r))
	})
}

func bindRequest(w http.ResponseWriter, r *http.Request) *http.Request {
	ctx := r.Context()
	if _, ok := authctx.RequestFrom(ctx); ok {
		return r
	}

	id := r.Header.Get(HeaderRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, id)

	ctx = logctx.WithRequestData(ctx, &logctx.RequestData{
		RequestID:  id,
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	return r.WithContext(authctx.WithRequest(ctx, r))
}

type identityKey struct{}

func withIdentity(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, identityKey{}, c)
}

// IdentityFromContext returns the claims stored by IdentityMiddleware.
func IdentityFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(identityKey{}).(Claims)
	return c, ok
}

// IdentityMiddleware resolves the caller once per request and stores the
// claims for IdentityFromContext. Anonymous callers get empty claims.
// Failures to resolve identity end the request with an error status.
func (s *Service) IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = bindRequest(w, r)
		ctx := r.Context()

		claims, err := s.GetUserData(ctx)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, ErrKeyFetch):
				status = http.StatusServiceUnavailable
			case errors.Is(err, ErrUserInfoStatus):
				status = http.StatusBadGateway
			case errors.Is(err, ErrMalformedUserData):
				status = http.StatusBadRequest
			}
			s.log.ErrorContext(ctx, "identity.resolve.fail", slog.String("err", err.Error()), slog.Int("status", status))
			http.Error(w, http.StatusText(status), status)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(ctx, claims)))
	})
}
