// Package dashauth identifies the caller of a request made to an app hosted
// on Dash Enterprise.
//
// Two schemes are supported and chosen once, from the environment, when a
// Service is built:
//
//   - Legacy: the platform proxy forwards the caller's profile as JSON in the
//     Plotly-User-Data header. The header is trusted as-is.
//   - JWKS: when DASH_JWKS_URL is set, the caller presents a base64-encoded
//     identity token in the kcIdToken cookie. The token is verified against
//     the published key set (signature, expiry and audience) and may be
//     enriched from DASH_USER_INFO_URL using the kcToken cookie.
//
// Request material is read from the context. Wrap handlers with Middleware
// (or call WithRequest) so the live request is reachable, and use
// WithCallbackCookies for work that runs after the request has finished.
// Inside a Dash Enterprise workspace the platform injects the cookie values
// into the environment and no request is needed.
//
// Example:
//
//	svc, err := dashauth.NewFromEnv()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
//
//	http.Handle("/", dashauth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//		name, ok, err := svc.GetUsername(r.Context())
//		if err != nil {
//			http.Error(w, err.Error(), http.StatusInternalServerError)
//			return
//		}
//		if !ok {
//			name = "anonymous"
//		}
//		fmt.Fprintf(w, "hello %s\n", name)
//	})))
//
// # Failure behaviour
//
// Verification failures (bad signature, expired token, wrong audience,
// malformed cookie) are not errors for GetUserData and GetUsername: the
// caller is treated as anonymous and a warning is logged. Failures to reach
// the key set, a rejected user-info call and a missing request context are
// returned. GetKerberosTicketCache never degrades.
package dashauth
