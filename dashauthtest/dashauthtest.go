// Package dashauthtest provides an in-process identity provider for tests of
// code built on dashauth: a JWKS endpoint, a token signer and a user-info
// endpoint.
package dashauthtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer publishes a JWKS and signs RS256 tokens with its current key.
type Issuer struct {
	Server *httptest.Server

	mu        sync.Mutex
	key       *rsa.PrivateKey
	kid       string
	published []jose.JSONWebKey
	seq       int

	fetches  atomic.Int32
	failNext atomic.Int32
}

// NewIssuer starts an Issuer that is shut down when t finishes.
func NewIssuer(t testing.TB) *Issuer {
	t.Helper()
	i := &Issuer{}
	i.Rotate(t)
	i.Server = httptest.NewServer(http.HandlerFunc(i.serveJWKS))
	t.Cleanup(i.Server.Close)
	return i
}

func (i *Issuer) serveJWKS(w http.ResponseWriter, r *http.Request) {
	i.fetches.Add(1)
	if n := i.failNext.Load(); n > 0 && i.failNext.CompareAndSwap(n, n-1) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	i.mu.Lock()
	set := jose.JSONWebKeySet{Keys: append([]jose.JSONWebKey(nil), i.published...)}
	i.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(set)
}

// JWKSURL is the endpoint to configure as DASH_JWKS_URL.
func (i *Issuer) JWKSURL() string { return i.Server.URL + "/jwks" }

// KeyID is the kid of the current signing key.
func (i *Issuer) KeyID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.kid
}

// Fetches counts JWKS requests served so far.
func (i *Issuer) Fetches() int { return int(i.fetches.Load()) }

// FailNext makes the next n JWKS requests answer 503.
func (i *Issuer) FailNext(n int) { i.failNext.Store(int32(n)) }

// Rotate generates a new signing key and publishes it next to the old ones.
func (i *Issuer) Rotate(t testing.TB) {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.seq++
	i.key = pk
	i.kid = fmt.Sprintf("key-%d", i.seq)
	i.published = append(i.published, jose.JSONWebKey{Key: &pk.PublicKey, KeyID: i.kid, Algorithm: "RS256", Use: "sig"})
}

// Sign returns a compact token over claims, signed with the current key.
func (i *Issuer) Sign(t testing.TB, claims map[string]any) string {
	t.Helper()
	i.mu.Lock()
	pk, kid := i.key, i.kid
	i.mu.Unlock()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims(claims))
	tok.Header["kid"] = kid
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

// Claims returns a minimal valid claim set for username.
func Claims(username, audience string, ttl time.Duration) map[string]any {
	now := time.Now()
	return map[string]any{
		"preferred_username": username,
		"aud":                audience,
		"iat":                now.Unix(),
		"exp":                now.Add(ttl).Unix(),
	}
}

// Cookie encodes a token the way the platform stores it in a cookie.
func Cookie(token string) string {
	return base64.StdEncoding.EncodeToString([]byte(token))
}

// UserData encodes v as a Plotly-User-Data header value.
func UserData(t testing.TB, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal user data: %v", err)
	}
	return string(b)
}

// UserInfoServer answers user-info requests with a fixed document or status.
type UserInfoServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	doc      map[string]any
	status   int
	lastAuth string
	lastUA   string
	calls    int
}

// NewUserInfoServer serves doc with 200 until SetStatus is called.
func NewUserInfoServer(t testing.TB, doc map[string]any) *UserInfoServer {
	t.Helper()
	u := &UserInfoServer{doc: doc, status: http.StatusOK}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.calls++
		u.lastAuth = r.Header.Get("Authorization")
		u.lastUA = r.Header.Get("User-Agent")
		status, doc := u.status, u.doc
		u.mu.Unlock()

		if status != http.StatusOK {
			http.Error(w, http.StatusText(status), status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(u.Server.Close)
	return u
}

// URL is the endpoint to configure as DASH_USER_INFO_URL.
func (u *UserInfoServer) URL() string { return u.Server.URL + "/userinfo" }

// SetStatus makes every following request answer with status.
func (u *UserInfoServer) SetStatus(status int) {
	u.mu.Lock()
	u.status = status
	u.mu.Unlock()
}

// LastRequest returns the Authorization and User-Agent headers of the most
// recent request and the number of requests served.
func (u *UserInfoServer) LastRequest() (authorization, userAgent string, calls int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastAuth, u.lastUA, u.calls
}
