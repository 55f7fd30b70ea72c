//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package httpx

func osRelease() string { return "unknown" }
