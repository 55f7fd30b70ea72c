//go:build linux || darwin || freebsd || netbsd || openbsd

package httpx

import "golang.org/x/sys/unix"

func osRelease() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "unknown"
	}
	return unix.ByteSliceToString(u.Release[:])
}
