package dashauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ggoodman/dash-enterprise-auth-go/internal/authctx"
	"github.com/ggoodman/dash-enterprise-auth-go/internal/httpx"
	"github.com/ggoodman/dash-enterprise-auth-go/internal/jwtauth"
	"github.com/ggoodman/dash-enterprise-auth-go/internal/logctx"
	"github.com/ggoodman/dash-enterprise-auth-go/internal/userinfo"
)

const (
	claimUsername          = "username"
	claimPreferredUsername = "preferred_username"
	claimTicketExpiry      = "kerberos_ticket_expiry"
	claimTicketCache       = "kerberos_ticket_cache"

	ticketExpiryLayout = "2006-01-02T15:04:05Z"
)

// Claims is the caller's identity as a JSON object. It is never nil when
// returned without error.
type Claims map[string]any

// String returns the claim named key when it is a string.
func (c Claims) String(key string) (string, bool) {
	s, ok := c[key].(string)
	return s, ok
}

// Service resolves caller identity for one platform configuration. It is
// safe for concurrent use; the key set cache is shared by all callers.
type Service struct {
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
	accessor *authctx.Accessor

	// JWKS mode only.
	resolver  *jwtauth.Resolver
	verifier  jwtauth.Verifier
	workspace *jwtauth.WorkspaceVerifier
	userInfo  *userinfo.Client
}

// New builds a Service for cfg. No network calls are made until identity is
// first resolved.
func New(cfg Config, opts ...Option) (*Service, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	handler := o.logHandler
	if handler == nil {
		handler = slog.DiscardHandler
	}
	now := o.now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		cfg:      cfg,
		log:      slog.New(logctx.Handler{Handler: handler}),
		now:      now,
		accessor: authctx.NewAccessor(cfg.workspaceCookies(), cfg.InNotebook() && !cfg.IsWorkspace()),
	}
	if cfg.Mode() != ModeJWKS {
		return s, nil
	}

	client := httpx.NewClient(o.httpClient, httpx.UserAgent(Version))
	fetcher := &jwtauth.Fetcher{
		Client:          client,
		InitialInterval: o.initialInterval,
		MaxInterval:     o.maxInterval,
		MaxTries:        cfg.MaxFetchAttempts,
		Notify: func(err error, next time.Duration) {
			s.log.Debug("jwks.fetch.retry", slog.String("err", err.Error()), slog.Duration("next", next))
		},
	}
	ropts := []jwtauth.ResolverOption{
		jwtauth.WithLogger(s.log),
		jwtauth.WithUnknownKeyRefresh(cfg.UnknownKeyInterval),
	}
	if o.keyStore != nil {
		ropts = append(ropts, jwtauth.WithStore(o.keyStore, cfg.KeyCacheTTL))
	}
	s.resolver = jwtauth.NewResolver(cfg.JWKSURL, fetcher, ropts...)
	s.verifier = jwtauth.Verifier{Audience: cfg.EffectiveAudience(), Now: now}

	if cfg.IsWorkspace() && cfg.WorkspaceToken != "" {
		s.workspace = jwtauth.NewWorkspaceVerifier(cfg.JWKSURL, client, now)
	}
	if cfg.UserInfoURL != "" {
		s.userInfo = userinfo.New(cfg.UserInfoURL, cfg.JWKSURL, client, o.userInfoTimeout)
	}
	return s, nil
}

// NewFromEnv is New(ConfigFromEnv(), opts...).
func NewFromEnv(opts ...Option) (*Service, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// Close releases background key refresh started for workspace tokens.
func (s *Service) Close() error {
	if s.workspace != nil {
		s.workspace.Close()
	}
	return nil
}

// Mode reports the identity scheme in use.
func (s *Service) Mode() Mode { return s.cfg.Mode() }

// Config returns the normalized configuration.
func (s *Service) Config() Config { return s.cfg }

// GetUserData returns the caller's claims. An anonymous caller, or one whose
// token fails verification, yields empty Claims.
func (s *Service) GetUserData(ctx context.Context) (Claims, error) {
	return s.userData(ctx, "GetUserData")
}

// GetUsername returns the caller's username and whether one was present.
func (s *Service) GetUsername(ctx context.Context) (string, bool, error) {
	const op = "GetUsername"

	if s.workspace != nil {
		claims, err := s.verifyWorkspaceToken(ctx)
		if err != nil {
			return "", false, err
		}
		name, ok := claims.String(claimPreferredUsername)
		return name, ok, nil
	}

	claims, err := s.userData(ctx, op)
	if err != nil {
		return "", false, err
	}
	key := claimPreferredUsername
	if s.Mode() == ModeLegacy {
		key = claimUsername
	}
	name, ok := claims.String(key)
	return name, ok, nil
}

// GetKerberosTicketCache returns the decoded Kerberos ticket cache of the
// caller. It needs a live request and fails unless the ticket expiry is
// strictly in the future.
func (s *Service) GetKerberosTicketCache(ctx context.Context) ([]byte, error) {
	const op = "GetKerberosTicketCache"

	if _, err := s.accessor.Request(ctx, op); err != nil {
		return nil, err
	}
	// Token and user-info failures are returned here rather than read as
	// an anonymous caller.
	var claims Claims
	var err error
	if s.resolver == nil {
		claims, err = s.legacyUserData(ctx, op)
	} else {
		claims, err = s.jwksUserData(ctx, op, true)
	}
	if err != nil {
		return nil, err
	}

	expiry, ok := claims.String(claimTicketExpiry)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, claimTicketExpiry)
	}
	cache, ok := claims.String(claimTicketCache)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, claimTicketCache)
	}

	exp, err := time.Parse(ticketExpiryLayout, expiry)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q: %v", ErrMalformedUserData, claimTicketExpiry, expiry, err)
	}
	if !exp.After(s.now().UTC()) {
		return nil, fmt.Errorf("%w: expired at %s", ErrExpiredTicket, exp.Format(ticketExpiryLayout))
	}

	ticket, err := base64.StdEncoding.DecodeString(cache)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedUserData, claimTicketCache, err)
	}
	return ticket, nil
}

// VerifyToken verifies a compact identity token the way the kcIdToken
// cookie is verified, returning verification failures instead of degrading.
func (s *Service) VerifyToken(ctx context.Context, token string) (Claims, error) {
	if s.resolver == nil {
		return nil, fmt.Errorf("%w: DASH_JWKS_URL is not configured", ErrKeyFetch)
	}
	key, err := s.resolver.ResolveKey(ctx, token)
	if err != nil {
		return nil, publicError(err)
	}
	claims, err := s.verifier.VerifyAndExtract(token, key)
	if err != nil {
		return nil, publicError(err)
	}
	return Claims(claims), nil
}

func (s *Service) userData(ctx context.Context, op string) (Claims, error) {
	if s.resolver == nil {
		return s.legacyUserData(ctx, op)
	}
	return s.jwksUserData(ctx, op, false)
}

func (s *Service) legacyUserData(ctx context.Context, op string) (Claims, error) {
	raw, err := s.accessor.Header(ctx, op, HeaderUserData)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return Claims{}, nil
	}
	var claims Claims
	if err := json.Unmarshal([]byte(raw), &claims); err != nil {
		return nil, fmt.Errorf("%w: %s header: %v", ErrMalformedUserData, HeaderUserData, err)
	}
	if claims == nil {
		claims = Claims{}
	}
	return claims, nil
}

// jwksUserData verifies the identity cookie. Unless strict, verification and
// enrichment failures degrade to empty claims.
func (s *Service) jwksUserData(ctx context.Context, op string, strict bool) (Claims, error) {
	lk, err := s.accessor.Cookie(ctx, op, CookieIDToken)
	if err != nil {
		return nil, err
	}
	ctx = logctx.WithAuthData(ctx, &logctx.AuthData{
		Mode:     string(ModeJWKS),
		Source:   lk.Source,
		Audience: s.verifier.Audience,
	})
	if !lk.Found {
		s.log.DebugContext(ctx, "identity.cookie.absent", slog.String("cookie", CookieIDToken))
		return Claims{}, nil
	}

	raw, err := jwtauth.DecodeCookie(&lk.Value)
	if err != nil {
		if strict {
			return nil, publicError(err)
		}
		s.log.WarnContext(ctx, "identity.cookie.decode.fail", slog.String("err", err.Error()))
		return Claims{}, nil
	}
	claims, err := s.VerifyToken(ctx, raw.String())
	if err != nil {
		if !strict && jwtauth.IsVerificationError(err) {
			s.log.WarnContext(ctx, "identity.verify.fail", slog.String("err", err.Error()))
			return Claims{}, nil
		}
		return nil, err
	}

	if s.userInfo == nil {
		return claims, nil
	}
	return s.enrich(ctx, op, claims, strict)
}

func (s *Service) enrich(ctx context.Context, op string, claims Claims, strict bool) (Claims, error) {
	lk, err := s.accessor.Cookie(ctx, op, CookieAccessToken)
	if err != nil {
		return nil, err
	}
	if !lk.Found {
		s.log.DebugContext(ctx, "userinfo.skip", slog.String("reason", "no "+CookieAccessToken+" cookie"))
		return claims, nil
	}
	bearer, err := jwtauth.DecodeCookie(&lk.Value)
	if err != nil {
		if strict {
			return nil, publicError(err)
		}
		s.log.WarnContext(ctx, "userinfo.cookie.decode.fail", slog.String("err", err.Error()))
		return Claims{}, nil
	}

	info, err := s.userInfo.Fetch(ctx, bearer.String())
	if err != nil {
		if strict || errors.Is(err, userinfo.ErrStatus) {
			return nil, publicError(err)
		}
		s.log.WarnContext(ctx, "userinfo.fetch.fail", slog.String("url", s.userInfo.URL()), slog.String("err", err.Error()))
		return Claims{}, nil
	}
	for k, v := range info {
		claims[k] = v
	}
	return claims, nil
}

func (s *Service) verifyWorkspaceToken(ctx context.Context) (Claims, error) {
	ctx = logctx.WithAuthData(ctx, &logctx.AuthData{
		Mode:     string(ModeJWKS),
		Source:   "workspace",
		Audience: jwtauth.WorkspaceAudience,
	})
	claims, err := s.workspace.Verify(ctx, s.cfg.WorkspaceToken)
	if err != nil {
		if jwtauth.IsVerificationError(err) {
			s.log.WarnContext(ctx, "workspace.verify.fail", slog.String("err", err.Error()))
			return Claims{}, nil
		}
		return nil, publicError(err)
	}
	return Claims(claims), nil
}
