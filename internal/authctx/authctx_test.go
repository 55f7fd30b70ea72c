package authctx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func requestWithCookies(cookies map[string]string, headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range cookies {
		r.AddCookie(&http.Cookie{Name: k, Value: v})
	}
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestAccessorCookie(t *testing.T) {
	ws := map[string]string{"kcIdToken": "from-workspace"}

	cases := []struct {
		name      string
		ctx       func() context.Context
		workspace map[string]string
		want      Lookup
		wantErr   bool
	}{
		{
			name: "live request wins",
			ctx: func() context.Context {
				ctx := WithCallbackCookies(context.Background(), map[string]string{"kcIdToken": "from-callback"})
				return WithRequest(ctx, requestWithCookies(map[string]string{"kcIdToken": "from-request"}, nil))
			},
			workspace: ws,
			want:      Lookup{Value: "from-request", Found: true, Source: "request"},
		},
		{
			name: "callback when request lacks cookie",
			ctx: func() context.Context {
				ctx := WithCallbackCookies(context.Background(), map[string]string{"kcIdToken": "from-callback"})
				return WithRequest(ctx, requestWithCookies(nil, nil))
			},
			want: Lookup{Value: "from-callback", Found: true, Source: "callback"},
		},
		{
			name:      "workspace injection",
			ctx:       context.Background,
			workspace: ws,
			want:      Lookup{Value: "from-workspace", Found: true, Source: "workspace"},
		},
		{
			name: "absent everywhere available",
			ctx: func() context.Context {
				return WithRequest(context.Background(), requestWithCookies(nil, nil))
			},
			want: Lookup{},
		},
		{
			name:    "nothing available",
			ctx:     context.Background,
			wantErr: true,
		},
		{
			name: "empty cookie value is found",
			ctx: func() context.Context {
				return WithCallbackCookies(context.Background(), map[string]string{"kcIdToken": ""})
			},
			want: Lookup{Value: "", Found: true, Source: "callback"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAccessor(tc.workspace, false)
			got, err := a.Cookie(tc.ctx(), "GetUserData", "kcIdToken")
			if tc.wantErr {
				if !errors.Is(err, ErrNoRequestContext) {
					t.Fatalf("want ErrNoRequestContext, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("cookie: %v", err)
			}
			if got != tc.want {
				t.Fatalf("want %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestAccessorHeader(t *testing.T) {
	a := NewAccessor(map[string]string{"kcIdToken": "x"}, false)

	r := requestWithCookies(nil, map[string]string{"Plotly-User-Data": `{"username":"bob"}`})
	v, err := a.Header(WithRequest(context.Background(), r), "GetUserData", "Plotly-User-Data")
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if v != `{"username":"bob"}` {
		t.Fatalf("unexpected header %q", v)
	}

	// Workspace injection never supplies headers.
	_, err = a.Header(context.Background(), "GetUserData", "Plotly-User-Data")
	var ce *ContextError
	if !errors.As(err, &ce) || ce.Op != "GetUserData" {
		t.Fatalf("want *ContextError for GetUserData, got %v", err)
	}
}

func TestContextErrorWording(t *testing.T) {
	generic := NewAccessor(nil, false)
	_, err := generic.Request(context.Background(), "GetKerberosTicketCache")
	if err == nil || strings.Contains(err.Error(), "notebook") {
		t.Fatalf("want generic wording, got %v", err)
	}
	if !strings.Contains(err.Error(), "GetKerberosTicketCache") {
		t.Fatalf("message should name the operation: %v", err)
	}

	nb := NewAccessor(nil, true)
	_, err = nb.Cookie(context.Background(), "GetUsername", "kcIdToken")
	if !errors.Is(err, ErrNoRequestContext) {
		t.Fatalf("want ErrNoRequestContext, got %v", err)
	}
	if !strings.Contains(err.Error(), "notebook") || !strings.Contains(err.Error(), "workspace") {
		t.Fatalf("want notebook wording, got %v", err)
	}
}

func TestCallbackCookiesAreCopied(t *testing.T) {
	src := map[string]string{"kcToken": "a"}
	ctx := WithCallbackCookies(context.Background(), src)
	src["kcToken"] = "b"

	got, ok := CallbackCookiesFrom(ctx)
	if !ok || got["kcToken"] != "a" {
		t.Fatalf("want isolated copy, got %v", got)
	}
}

func TestOutcomeString(t *testing.T) {
	for o, want := range map[Outcome]string{Unavailable: "unavailable", Absent: "absent", Found: "found"} {
		if o.String() != want {
			t.Fatalf("%d: want %q, got %q", o, want, o.String())
		}
	}
}
