// Package redact masks personal data in transcripts and credentials in
// URLs and error text before they reach logs, traces or the terminal.
package redact

import (
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)

	bearerRe = regexp.MustCompile(`(?i)(bearer\s+)[a-z0-9._\-]+`)
	secretRe = regexp.MustCompile(`(?i)("?(?:access_token|api_key|auth_token|apikey)"?\s*[:=]\s*"?)[^"&\s,}]+`)
)

const mask = "[REDACTED]"

// secretParams are query parameters that always carry credentials.
var secretParams = []string{"access_token", "api_key", "token"}

// SetEnabled toggles PII redaction. Credential masking is always on.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when PII redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts emails and phone numbers when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Credentials masks bearer tokens and key=value / "key": "value" secrets.
func Credentials(in string) string {
	if in == "" {
		return in
	}
	out := bearerRe.ReplaceAllString(in, "${1}"+mask)
	return secretRe.ReplaceAllString(out, "${1}"+mask)
}

// URL masks credential query parameters. Unparseable input falls back to Credentials.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return Credentials(raw)
	}
	q := u.Query()
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, mask)
			changed = true
		}
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
		changed = true
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}
