// Package pathnorm maps Windows drive paths onto their WSL mount equivalent so
// uploads recorded on a Windows host resolve inside the Linux worker.
package pathnorm

import (
	"regexp"
	"strings"
)

var driveAbs = regexp.MustCompile(`^[A-Za-z]:\\`)

// Normalize rewrites `X:\a\b` to `/mnt/x/a/b`. POSIX-absolute, relative and
// empty paths come back unchanged. It performs no I/O and is idempotent.
func Normalize(p string) string {
	if p == "" || strings.HasPrefix(p, "/") {
		return p
	}
	if !driveAbs.MatchString(p) {
		return p
	}
	drive := strings.ToLower(p[:1])
	rest := strings.ReplaceAll(p[3:], `\`, "/")
	return "/mnt/" + drive + "/" + rest
}
