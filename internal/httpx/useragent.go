// Package httpx holds the outbound HTTP plumbing shared by the JWKS fetcher
// and the user-info client: the product user agent and a transport that
// stamps it and surfaces error statuses as typed errors.
package httpx

import (
	"fmt"
	"runtime"
	"strings"
)

// UserAgent formats the identifying User-Agent sent on every outbound call:
//
//	Plotly/<version> (Language=Go/<goversion>; Platform=<os>/<release>)
func UserAgent(version string) string {
	return fmt.Sprintf("Plotly/%s (Language=Go/%s; Platform=%s/%s)",
		version,
		strings.TrimPrefix(runtime.Version(), "go"),
		runtime.GOOS,
		osRelease(),
	)
}
