package authctx

import (
	"context"
	"net/http"
)

// Outcome is the result of asking one source for a cookie.
type Outcome int

const (
	// Unavailable means the source does not exist in this context.
	Unavailable Outcome = iota
	// Absent means the source exists but has no such cookie.
	Absent
	// Found means the source supplied a value.
	Found
)

func (o Outcome) String() string {
	switch o {
	case Absent:
		return "absent"
	case Found:
		return "found"
	default:
		return "unavailable"
	}
}

// Probe is one place request material may come from.
type Probe interface {
	Name() string
	Cookie(ctx context.Context, name string) (string, Outcome)
}

// RequestProbe reads cookies from the live request.
type RequestProbe struct{}

func (RequestProbe) Name() string { return "request" }

func (RequestProbe) Cookie(ctx context.Context, name string) (string, Outcome) {
	r, ok := RequestFrom(ctx)
	if !ok {
		return "", Unavailable
	}
	c, err := r.Cookie(name)
	if err != nil {
		return "", Absent
	}
	return c.Value, Found
}

// CallbackProbe reads cookies cached for a deferred callback.
type CallbackProbe struct{}

func (CallbackProbe) Name() string { return "callback" }

func (CallbackProbe) Cookie(ctx context.Context, name string) (string, Outcome) {
	cookies, ok := CallbackCookiesFrom(ctx)
	if !ok {
		return "", Unavailable
	}
	v, ok := cookies[name]
	if !ok {
		return "", Absent
	}
	return v, Found
}

// WorkspaceProbe serves cookie values injected into a workspace session.
// A nil Values map means the process is not a workspace session.
type WorkspaceProbe struct {
	Values map[string]string
}

func (WorkspaceProbe) Name() string { return "workspace" }

func (p WorkspaceProbe) Cookie(_ context.Context, name string) (string, Outcome) {
	if p.Values == nil {
		return "", Unavailable
	}
	v, ok := p.Values[name]
	if !ok || v == "" {
		return "", Absent
	}
	return v, Found
}

// Lookup is the result of Accessor.Cookie.
type Lookup struct {
	Value  string
	Found  bool
	Source string
}

// Accessor asks its probes in order. The first Found wins; if no probe is
// even available the call fails with a *ContextError.
type Accessor struct {
	Probes   []Probe
	Notebook bool
}

// NewAccessor returns an Accessor with the request, callback and workspace
// probes in that order. workspace is nil outside a workspace session.
func NewAccessor(workspace map[string]string, notebook bool) *Accessor {
	return &Accessor{
		Probes:   []Probe{RequestProbe{}, CallbackProbe{}, WorkspaceProbe{Values: workspace}},
		Notebook: notebook,
	}
}

// Cookie resolves name on behalf of op (used in the diagnostic).
func (a *Accessor) Cookie(ctx context.Context, op, name string) (Lookup, error) {
	available := false
	for _, p := range a.Probes {
		v, out := p.Cookie(ctx, name)
		switch out {
		case Found:
			return Lookup{Value: v, Found: true, Source: p.Name()}, nil
		case Absent:
			available = true
		}
	}
	if !available {
		return Lookup{}, a.contextError(op)
	}
	return Lookup{}, nil
}

// Header reads a header from the live request. Only the live request can
// supply headers.
func (a *Accessor) Header(ctx context.Context, op, name string) (string, error) {
	r, err := a.Request(ctx, op)
	if err != nil {
		return "", err
	}
	return r.Header.Get(name), nil
}

// Request returns the live request or a *ContextError.
func (a *Accessor) Request(ctx context.Context, op string) (*http.Request, error) {
	r, ok := RequestFrom(ctx)
	if !ok {
		return nil, a.contextError(op)
	}
	return r, nil
}

func (a *Accessor) contextError(op string) error {
	return &ContextError{Op: op, Notebook: a.Notebook}
}
