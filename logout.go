package dashauth

import (
	"html/template"
	"io"
	"maps"
	"regexp"
	"slices"
	"strings"
)

// DefaultLogoutLabel is the text of a logout affordance.
const DefaultLogoutLabel = "Logout"

// LogoutAffordance renders a control that sends the caller to the platform
// logout URL.
type LogoutAffordance interface {
	Render(w io.Writer) error
	URL() string
	Label() string
}

// LogoutOption configures NewLogoutAffordance.
type LogoutOption func(*logoutOptions)

type logoutOptions struct {
	label string
	style map[string]string
}

// WithLabel sets the visible text.
func WithLabel(label string) LogoutOption {
	return func(o *logoutOptions) { o.label = label }
}

// WithStyle sets CSS properties on the link block. Native buttons ignore it.
func WithStyle(style map[string]string) LogoutOption {
	return func(o *logoutOptions) { o.style = maps.Clone(style) }
}

// NewLogoutAffordance picks the variant for cfg: a native logout button in
// legacy mode, and a styled link block when a key set URL is configured.
func NewLogoutAffordance(cfg Config, opts ...LogoutOption) (LogoutAffordance, error) {
	cfg.Normalize()
	if cfg.LogoutURL == "" {
		return nil, ErrLogoutURLMissing
	}
	o := logoutOptions{label: DefaultLogoutLabel}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Mode() == ModeLegacy {
		return &NativeButton{url: cfg.LogoutURL, label: o.label}, nil
	}
	return &FallbackLinkBlock{url: cfg.LogoutURL, label: o.label, style: o.style}, nil
}

// LogoutAffordance is NewLogoutAffordance(s.Config(), opts...).
func (s *Service) LogoutAffordance(opts ...LogoutOption) (LogoutAffordance, error) {
	return NewLogoutAffordance(s.cfg, opts...)
}

var (
	nativeButtonTmpl = template.Must(template.New("native").Parse(
		`<form class="dash-logout" method="post" action="{{.URL}}">` +
			`<button type="submit" class="dash-logout-btn">{{.Label}}</button></form>`))

	linkBlockTmpl = template.Must(template.New("link").Parse(
		`<div class="dash-logout" style="{{.Style}}"><a href="{{.URL}}">{{.Label}}</a></div>`))
)

// NativeButton posts to the logout URL from a form button.
type NativeButton struct {
	url, label string
}

func (b *NativeButton) URL() string   { return b.url }
func (b *NativeButton) Label() string { return b.label }

func (b *NativeButton) Render(w io.Writer) error {
	return nativeButtonTmpl.Execute(w, struct{ URL, Label string }{b.url, b.label})
}

// FallbackLinkBlock is an inline-block div holding a plain logout link.
type FallbackLinkBlock struct {
	url, label string
	style      map[string]string
}

func (b *FallbackLinkBlock) URL() string   { return b.url }
func (b *FallbackLinkBlock) Label() string { return b.label }

func (b *FallbackLinkBlock) Render(w io.Writer) error {
	return linkBlockTmpl.Execute(w, struct {
		URL, Label string
		Style      template.CSS
	}{b.url, b.label, template.CSS(b.cssText())})
}

var (
	cssProperty = regexp.MustCompile(`^-?[a-zA-Z][a-zA-Z0-9-]*$`)
	cssValue    = regexp.MustCompile(`^[a-zA-Z0-9#%.,()\s-]*$`)
)

// cssText merges the caller's properties over display:inline-block and
// renders them in name order. Properties whose name or value could escape
// the declaration are dropped.
func (b *FallbackLinkBlock) cssText() string {
	style := map[string]string{"display": "inline-block"}
	for k, v := range b.style {
		k, v = strings.ToLower(strings.TrimSpace(k)), strings.TrimSpace(v)
		if !cssProperty.MatchString(k) || v == "" || !cssValue.MatchString(v) {
			continue
		}
		style[k] = v
	}
	decls := make([]string, 0, len(style))
	for _, k := range slices.Sorted(maps.Keys(style)) {
		decls = append(decls, k+":"+style[k])
	}
	return strings.Join(decls, ";")
}
