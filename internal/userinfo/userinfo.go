// Package userinfo fetches the user-info document that enriches verified
// identity claims.
package userinfo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/ggoodman/dash-enterprise-auth-go/internal/httpx"
	"golang.org/x/oauth2"
)

const DefaultTimeout = 10 * time.Second

// ErrStatus indicates the endpoint answered with a 4xx or 5xx status.
var ErrStatus = errors.New("userinfo: error status")

// Client calls one user-info endpoint with a bearer token.
type Client struct {
	url     string
	http    *http.Client
	timeout time.Duration
	oidc    *oidc.Provider
}

// New returns a Client for url. httpClient should come from httpx.NewClient
// so error statuses surface as *httpx.StatusError. jwksURL is only used when
// the endpoint answers with a signed (application/jwt) document.
func New(url, jwksURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = httpx.NewClient(nil, "")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cfg := &oidc.ProviderConfig{UserInfoURL: url, JWKSURL: jwksURL}
	return &Client{
		url:     url,
		http:    httpClient,
		timeout: timeout,
		oidc:    cfg.NewProvider(oidc.ClientContext(context.Background(), httpClient)),
	}
}

// URL is the configured endpoint.
func (c *Client) URL() string { return c.url }

// Fetch GETs the document with "Authorization: Bearer accessToken" and
// returns its top-level members. A status failure wraps ErrStatus; transport
// and decode failures are returned as-is.
func (c *Client) Fetch(ctx context.Context, accessToken string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	ui, err := c.oidc.UserInfo(oidc.ClientContext(ctx, c.http), ts)
	if err != nil {
		var se *httpx.StatusError
		if errors.As(err, &se) {
			return nil, errors.Join(ErrStatus, se)
		}
		return nil, fmt.Errorf("userinfo: %w", err)
	}

	out := map[string]any{}
	if err := ui.Claims(&out); err != nil {
		return nil, fmt.Errorf("userinfo: decode claims: %w", err)
	}
	return out, nil
}
