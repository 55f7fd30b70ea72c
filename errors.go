package dashauth

import (
	"errors"

	"github.com/ggoodman/dash-enterprise-auth-go/internal/authctx"
	"github.com/ggoodman/dash-enterprise-auth-go/internal/jwtauth"
	"github.com/ggoodman/dash-enterprise-auth-go/internal/userinfo"
)

// ErrNoRequestContext is returned (as a *ContextError) when an operation
// needs request material and none can be found.
var ErrNoRequestContext = authctx.ErrNoRequestContext

// ContextError names the operation that ran without a request context. Its
// message differs for interactive notebook sessions.
type ContextError = authctx.ContextError

var (
	ErrKeyFetch         = errors.New("key fetch failed")
	ErrUnknownKey       = errors.New("unknown signing key")
	ErrSignature        = errors.New("invalid token signature")
	ErrExpiredToken     = errors.New("token expired")
	ErrAudienceMismatch = errors.New("token audience mismatch")
	ErrMalformedToken   = errors.New("malformed token")

	// ErrMalformedUserData indicates the Plotly-User-Data header, or a value
	// inside it, could not be decoded.
	ErrMalformedUserData = errors.New("malformed user data")

	// ErrMissingField indicates a claim needed by the operation is absent.
	ErrMissingField = errors.New("missing field")

	// ErrExpiredTicket indicates the Kerberos ticket expiry is not in the future.
	ErrExpiredTicket = errors.New("kerberos ticket has expired")

	// ErrUserInfoStatus indicates the user-info endpoint rejected the call.
	ErrUserInfoStatus = errors.New("user info request failed")

	// ErrLogoutURLMissing indicates DASH_LOGOUT_URL is not set.
	ErrLogoutURLMissing = errors.New("DASH_LOGOUT_URL was not set in the environment")
)

var errorMap = []struct {
	internal, public error
}{
	{jwtauth.ErrKeyFetch, ErrKeyFetch},
	{jwtauth.ErrUnknownKey, ErrUnknownKey},
	{jwtauth.ErrSignature, ErrSignature},
	{jwtauth.ErrExpiredToken, ErrExpiredToken},
	{jwtauth.ErrAudienceMismatch, ErrAudienceMismatch},
	{jwtauth.ErrMalformedToken, ErrMalformedToken},
	{userinfo.ErrStatus, ErrUserInfoStatus},
}

// publicError joins the exported sentinel matching err, if any, so callers
// can use errors.Is without importing internal packages.
func publicError(err error) error {
	if err == nil {
		return nil
	}
	for _, m := range errorMap {
		if errors.Is(err, m.internal) {
			return errors.Join(m.public, err)
		}
	}
	return err
}
