package logger

import "strings"

// RedactEmail masks the local part of an address: "jane.roe@acme.io"
// becomes "ja***@acme.io". Local parts of two characters or fewer are
// masked entirely. Anything that is not a single-@ address is fully masked.
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}
