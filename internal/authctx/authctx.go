// Package authctx locates the request material (cookies and headers) that
// identity resolution reads, whether it comes from a live HTTP request, from
// cookies cached for a deferred callback, or from values injected into a
// workspace session.
package authctx

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
)

// ErrNoRequestContext is matched by every *ContextError.
var ErrNoRequestContext = errors.New("no request context")

// ContextError reports that Op ran with no probe able to supply request
// material. Notebook selects the wording for interactive notebook sessions.
type ContextError struct {
	Op       string
	Notebook bool
}

func (e *ContextError) Error() string {
	if e.Notebook {
		return fmt.Sprintf("%s needs a request context, which a notebook session does not have; "+
			"call %s from a callback of a running app or run inside a Dash Enterprise workspace", e.Op, e.Op)
	}
	return fmt.Sprintf("%s needs a request context to run; call %s while handling a request or from a callback", e.Op, e.Op)
}

func (e *ContextError) Unwrap() error { return ErrNoRequestContext }

type requestKey struct{}

// WithRequest binds the live request to ctx.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// RequestFrom returns the live request bound by WithRequest.
func RequestFrom(ctx context.Context) (*http.Request, bool) {
	r, ok := ctx.Value(requestKey{}).(*http.Request)
	return r, ok && r != nil
}

type callbackKey struct{}

// WithCallbackCookies binds cookies captured from an earlier request so that
// work running after the request finished can still resolve the caller.
func WithCallbackCookies(ctx context.Context, cookies map[string]string) context.Context {
	return context.WithValue(ctx, callbackKey{}, maps.Clone(cookies))
}

// CallbackCookiesFrom returns the cookies bound by WithCallbackCookies.
func CallbackCookiesFrom(ctx context.Context) (map[string]string, bool) {
	c, ok := ctx.Value(callbackKey{}).(map[string]string)
	return c, ok && c != nil
}
