package jwtauth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RawToken is a compact JWT recovered from a cookie. The zero value means
// "no cookie", which is distinct from a present-but-empty token.
type RawToken struct {
	b       []byte
	present bool
}

// Present reports whether a cookie was supplied at all.
func (t RawToken) Present() bool { return t.present }

// Bytes returns the decoded token bytes.
func (t RawToken) Bytes() []byte { return t.b }

func (t RawToken) String() string { return string(t.b) }

var cookieEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// DecodeCookie base64-decodes a cookie value. A nil value is a missing
// cookie and yields the zero RawToken without error.
func DecodeCookie(value *string) (RawToken, error) {
	if value == nil {
		return RawToken{}, nil
	}
	v := strings.TrimSpace(*value)
	for _, enc := range cookieEncodings {
		if b, err := enc.DecodeString(v); err == nil {
			return RawToken{b: b, present: true}, nil
		}
	}
	return RawToken{}, fmt.Errorf("%w: cookie is not valid base64", ErrMalformedToken)
}

// Verifier checks a token against one resolved signing key.
type Verifier struct {
	// Audience must equal the token's aud claim exactly.
	Audience string
	// Algorithm overrides the algorithm declared on the key when set.
	Algorithm string
	// Now defaults to time.Now.
	Now func() time.Time
}

// VerifyAndExtract verifies the signature with key, requires exp to be in
// the future and aud to equal v.Audience, and returns the claims body.
func (v Verifier) VerifyAndExtract(token string, key SigningKey) (map[string]any, error) {
	alg := v.Algorithm
	if alg == "" {
		alg = key.Algorithm
	}
	if alg == "" {
		alg = DefaultAlgorithm
	}

	claims, err := parseClaims(token, alg, v.now(), func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != key.KeyID {
			return nil, fmt.Errorf("%w: token kid %q does not match key %q", ErrUnknownKey, kid, key.KeyID)
		}
		return key.Key, nil
	})
	if err != nil {
		return nil, err
	}
	if !audienceEquals(claims["aud"], v.Audience) {
		return nil, fmt.Errorf("%w: want %q, got %v", ErrAudienceMismatch, v.Audience, claims["aud"])
	}
	return claims, nil
}

func (v Verifier) now() func() time.Time {
	if v.Now != nil {
		return v.Now
	}
	return time.Now
}

// parseClaims runs the jwt parser with the policy shared by every token
// path (single algorithm, mandatory exp) and folds its errors into this
// package's sentinels.
func parseClaims(token, alg string, now func() time.Time, keyfunc jwt.Keyfunc) (jwt.MapClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{alg}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(token, claims, keyfunc); err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrUnknownKey):
		return err
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrExpiredToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignature, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrUnknownKey, err)
	default:
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}
}

// audienceEquals is a single-value match: a string aud must equal want, an
// array aud must hold exactly that one value.
func audienceEquals(aud any, want string) bool {
	switch v := aud.(type) {
	case string:
		return v == want
	case []any:
		if len(v) != 1 {
			return false
		}
		s, ok := v[0].(string)
		return ok && s == want
	case []string:
		return len(v) == 1 && v[0] == want
	}
	return false
}
