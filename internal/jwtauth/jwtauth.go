// Package jwtauth resolves JWKS signing keys and verifies the identity
// tokens issued to apps hosted on Dash Enterprise.
package jwtauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultAlgorithm is assumed when neither the caller nor the JWKS entry
// names an algorithm.
const DefaultAlgorithm = "RS256"

var (
	// ErrKeyFetch indicates the JWKS endpoint was unreachable after retries
	// or returned something that is not a usable key set.
	ErrKeyFetch = errors.New("jwtauth: key fetch failed")

	// ErrUnknownKey indicates the token names a kid absent from the key set.
	ErrUnknownKey = errors.New("jwtauth: unknown signing key")

	// ErrMalformedToken indicates the token (or the cookie carrying it) could
	// not be decoded.
	ErrMalformedToken = errors.New("jwtauth: malformed token")

	// ErrSignature indicates the signature did not verify under the key.
	ErrSignature = errors.New("jwtauth: invalid signature")

	// ErrExpiredToken indicates exp is missing or not in the future.
	ErrExpiredToken = errors.New("jwtauth: token expired")

	// ErrAudienceMismatch indicates aud is not exactly the expected audience.
	ErrAudienceMismatch = errors.New("jwtauth: audience mismatch")
)

// IsVerificationError reports whether err belongs to the decode/verify class
// (as opposed to transport, configuration or context failures).
func IsVerificationError(err error) bool {
	return errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrUnknownKey) ||
		errors.Is(err, ErrSignature) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrAudienceMismatch)
}

// SigningKey is one verification key from a JWKS. Immutable once built.
type SigningKey struct {
	KeyID     string
	Algorithm string
	Key       any // *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey or []byte
}

// KeySet is an ordered, kid-unique collection of signing keys. A *KeySet is
// never mutated after ParseKeySet returns it.
type KeySet struct {
	keys      []SigningKey
	fetchedAt time.Time
}

// Len returns the number of usable keys.
func (s *KeySet) Len() int { return len(s.keys) }

// FetchedAt is when the underlying document was retrieved.
func (s *KeySet) FetchedAt() time.Time { return s.fetchedAt }

// Keys returns a copy of the keys in document order.
func (s *KeySet) Keys() []SigningKey { return append([]SigningKey(nil), s.keys...) }

// Lookup scans the set for kid.
func (s *KeySet) Lookup(kid string) (SigningKey, bool) {
	for _, k := range s.keys {
		if k.KeyID == kid {
			return k, true
		}
	}
	return SigningKey{}, false
}

// ParseKeySet decodes a JWKS document. Entries that go-jose cannot decode,
// or that are marked for encryption, are skipped; a document that is not a
// JWKS at all, or that yields no usable key, is an ErrKeyFetch.
func ParseKeySet(raw []byte) (*KeySet, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid JWKS document: %v", ErrKeyFetch, err)
	}
	if doc.Keys == nil {
		return nil, fmt.Errorf("%w: invalid JWKS document: missing keys", ErrKeyFetch)
	}

	set := &KeySet{fetchedAt: time.Now()}
	seen := map[string]bool{}
	for _, entry := range doc.Keys {
		var jwk jose.JSONWebKey
		if err := jwk.UnmarshalJSON(entry); err != nil {
			continue
		}
		if jwk.Use == "enc" || seen[jwk.KeyID] {
			continue
		}
		seen[jwk.KeyID] = true

		material := jwk.Key
		if pub := jwk.Public(); pub.Key != nil {
			material = pub.Key
		}
		set.keys = append(set.keys, SigningKey{
			KeyID:     jwk.KeyID,
			Algorithm: jwk.Algorithm,
			Key:       material,
		})
	}
	if len(doc.Keys) > 0 && len(set.keys) == 0 {
		return nil, fmt.Errorf("%w: JWKS document has no usable signing keys", ErrKeyFetch)
	}
	return set, nil
}

// KeyID returns the kid from the token's header without verifying anything.
func KeyID(token string) (string, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	kid, _ := parsed.Header["kid"].(string)
	return kid, nil
}
