package logger

import "strings"

// RedactEmail masks a subscriber address for log output, keeping just
// enough of the local part to correlate entries: "jane.doe@example.com"
// becomes "ja***@example.com". Local parts of two characters or fewer,
// and anything that is not a single-@ address, are masked entirely.
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) <= 2 {
		return "***@" + domain
	}
	return local[:2] + "***@" + domain
}
