package dashauth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ggoodman/dash-enterprise-auth-go/dashauthtest"
	"github.com/ggoodman/dash-enterprise-auth-go/internal/logctx"
)

func TestMiddlewareBindsRequest(t *testing.T) {
	s := newService(t, Config{})

	var got string
	var rid string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, _, err := s.GetUsername(r.Context())
		if err != nil {
			t.Errorf("username: %v", err)
		}
		got = name
		if rd, ok := logctx.RequestDataFrom(r.Context()); ok {
			rid = rd.RequestID
		}
	}))

	t.Run("generated request id", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(HeaderUserData, `{"username":"Mario"}`)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		if got != "Mario" {
			t.Fatalf("want Mario, got %q", got)
		}
		if _, err := uuid.Parse(rid); err != nil {
			t.Fatalf("want uuid request id, got %q", rid)
		}
		if w.Header().Get(HeaderRequestID) != rid {
			t.Fatalf("request id not echoed: %q", w.Header().Get(HeaderRequestID))
		}
	})

	t.Run("inbound request id", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(HeaderRequestID, "abc-123")
		h.ServeHTTP(httptest.NewRecorder(), r)
		if rid != "abc-123" {
			t.Fatalf("want inbound id, got %q", rid)
		}
	})
}

func TestIdentityMiddleware(t *testing.T) {
	iss := dashauthtest.NewIssuer(t)
	s := newService(t, jwksConfig(iss, "dash"))

	h := s.IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "no identity", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(claims)
	}))
	srv := httptest.NewServer(h)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.AddCookie(&http.Cookie{Name: CookieIDToken, Value: dashauthtest.Cookie(iss.Sign(t, dashauthtest.Claims("mario", "dash", time.Minute)))})
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, b)
	}
	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims["preferred_username"] != "mario" {
		t.Fatalf("unexpected claims %v", claims)
	}
}

func TestIdentityMiddlewareKeyFetchFailure(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer down.Close()

	iss := dashauthtest.NewIssuer(t)
	s := newService(t, Config{JWKSURL: down.URL})
	h := s.IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieIDToken, Value: dashauthtest.Cookie(iss.Sign(t, dashauthtest.Claims("x", "dash", time.Minute)))})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", w.Code)
	}
}

func TestCallbackCookies(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieIDToken, Value: "id"})
	r.AddCookie(&http.Cookie{Name: "other", Value: "x"})

	got := CallbackCookies(r)
	if len(got) != 1 || got[CookieIDToken] != "id" {
		t.Fatalf("unexpected captured cookies %v", got)
	}
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatal("empty context has no identity")
	}
}
