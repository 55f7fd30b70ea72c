package dashauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Mode is the identity scheme a Service uses.
type Mode string

const (
	ModeLegacy Mode = "legacy"
	ModeJWKS   Mode = "jwks"
)

const (
	// HeaderUserData carries the caller's profile in legacy mode.
	HeaderUserData = "Plotly-User-Data"
	// CookieIDToken carries the identity token in JWKS mode.
	CookieIDToken = "kcIdToken"
	// CookieAccessToken carries the bearer used for user-info enrichment.
	CookieAccessToken = "kcToken"

	DefaultAudience   = "dash"
	WorkspaceAudience = "account"

	workspaceEnv = "WORKSPACE"
)

// Config describes the platform environment. ConfigFromEnv fills it from the
// variables named in the env tags.
type Config struct {
	LogoutURL   string `env:"DASH_LOGOUT_URL"`
	JWKSURL     string `env:"DASH_JWKS_URL"`
	UserInfoURL string `env:"DASH_USER_INFO_URL"`

	// Audience overrides the expected token audience. See EffectiveAudience.
	Audience string `env:"DASH_AUD"`

	// Environment is "WORKSPACE" inside a Dash Enterprise workspace.
	Environment string `env:"DASH_ENTERPRISE_ENV"`

	// Values injected into a workspace session. WorkspaceToken is a compact
	// JWT; the other two are encoded like the cookies they stand in for.
	WorkspaceToken       string `env:"DASH_ENTERPRISE_TOKEN"`
	WorkspaceIDToken     string `env:"DASH_ENTERPRISE_KC_ID_TOKEN"`
	WorkspaceAccessToken string `env:"DASH_ENTERPRISE_KC_TOKEN"`

	// NotebookPID is set by Jupyter kernels.
	NotebookPID string `env:"JPY_PARENT_PID"`

	// KeyCacheTTL bounds how long a key set shared through a key store is trusted.
	KeyCacheTTL time.Duration `env:"DASH_JWKS_CACHE_TTL,default=10m"`

	// MaxFetchAttempts bounds key set fetch attempts. Zero retries until the
	// context is done.
	MaxFetchAttempts uint `env:"DASH_JWKS_MAX_ATTEMPTS,default=0"`

	// UnknownKeyInterval spaces key set refetches triggered by tokens
	// naming an unknown kid.
	UnknownKeyInterval time.Duration `env:"DASH_JWKS_UNKNOWN_KID_INTERVAL,default=1m"`
}

// ConfigFromEnv decodes Config from the process environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("dashauth config: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize trims whitespace and fills defaults.
func (c *Config) Normalize() {
	for _, s := range []*string{
		&c.LogoutURL, &c.JWKSURL, &c.UserInfoURL, &c.Audience, &c.Environment,
		&c.WorkspaceToken, &c.WorkspaceIDToken, &c.WorkspaceAccessToken, &c.NotebookPID,
	} {
		*s = strings.TrimSpace(*s)
	}
	if c.KeyCacheTTL <= 0 {
		c.KeyCacheTTL = 10 * time.Minute
	}
	if c.UnknownKeyInterval <= 0 {
		c.UnknownKeyInterval = time.Minute
	}
}

// Validate checks that configured endpoints are absolute http(s) URLs.
func (c Config) Validate() error {
	for name, v := range map[string]string{
		"DASH_JWKS_URL":      c.JWKSURL,
		"DASH_USER_INFO_URL": c.UserInfoURL,
	} {
		if v == "" {
			continue
		}
		u, err := url.Parse(v)
		if err != nil {
			return fmt.Errorf("dashauth config: %s: %w", name, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("dashauth config: %s must be an absolute http(s) URL, got %q", name, v)
		}
	}
	return nil
}

// Mode reports JWKS mode when a key set URL is configured.
func (c Config) Mode() Mode {
	if c.JWKSURL != "" {
		return ModeJWKS
	}
	return ModeLegacy
}

// IsWorkspace reports whether the process runs inside a workspace session.
func (c Config) IsWorkspace() bool {
	return c.Environment == workspaceEnv
}

// InNotebook reports whether the process is an interactive notebook kernel.
func (c Config) InNotebook() bool {
	return c.NotebookPID != ""
}

// EffectiveAudience is DASH_AUD when set, otherwise "account" inside a
// workspace and "dash" elsewhere.
func (c Config) EffectiveAudience() string {
	switch {
	case c.Audience != "":
		return c.Audience
	case c.IsWorkspace():
		return WorkspaceAudience
	default:
		return DefaultAudience
	}
}

func (c Config) workspaceCookies() map[string]string {
	if !c.IsWorkspace() {
		return nil
	}
	return map[string]string{
		CookieIDToken:     c.WorkspaceIDToken,
		CookieAccessToken: c.WorkspaceAccessToken,
	}
}
